package protocol

import "iter"

// Subframe is one step of a datagram walk.
type Subframe struct {
	Header SubframeHeader

	// Index is the position of the subframe header within the datagram.
	Index int
	// Offset of the captured region relative to the walked payload.
	Offset int
	// AlignedLength is the captured length rounded up to Alignment.
	AlignedLength int

	// Empty subframes carry fewer than MinCapturedLen bytes and are not
	// counted as captures.
	Empty bool
	// Overrun is set when the captured region runs past the payload end.
	// An overrun subframe is always the last one yielded.
	Overrun bool

	Integrity IntegrityResult
}

// Captured reports whether the subframe counts as a captured frame.
func (s Subframe) Captured() bool {
	return !s.Empty && !s.Overrun
}

// Walker iterates the subframes of one datagram payload (the bytes that
// follow the datagram header). A Walker is single use.
type Walker struct {
	payload []byte
	cursor  int
	index   int
	done    bool
}

// NewWalker returns a walker positioned at the first subframe header.
func NewWalker(payload []byte) *Walker {
	return &Walker{payload: payload}
}

// Next decodes the subframe at the cursor and advances past it.
// It returns false once the payload is consumed, when fewer than
// SubframeHeaderLen bytes remain, or after an overrun subframe.
func (w *Walker) Next() (Subframe, bool) {
	if w.done || len(w.payload)-w.cursor < SubframeHeaderLen {
		w.done = true
		return Subframe{}, false
	}

	hdr := DecodeSubframeHeader(w.payload, w.cursor)
	w.cursor += SubframeHeaderLen

	sf := Subframe{
		Header:        hdr,
		Index:         w.index,
		Offset:        w.cursor,
		AlignedLength: AlignedLength(hdr.CapturedLength),
	}
	w.index++

	captured := int(hdr.CapturedLength)
	switch {
	case captured > len(w.payload)-w.cursor:
		sf.Overrun = true
		w.done = true
		return sf, true
	case captured < MinCapturedLen:
		sf.Empty = true
	default:
		region := w.payload[w.cursor : w.cursor+captured]
		sf.Integrity = CheckIntegrity(region[PreambleLen:])
	}

	w.cursor += sf.AlignedLength
	return sf, true
}

// All returns an iterator over the remaining subframes.
func (w *Walker) All() iter.Seq[Subframe] {
	return func(yield func(Subframe) bool) {
		for {
			sf, ok := w.Next()
			if !ok || !yield(sf) {
				return
			}
		}
	}
}

// Cursor returns the number of payload bytes consumed so far.
// It may exceed the payload length when the last subframe's padding is absent.
func (w *Walker) Cursor() int {
	return w.cursor
}

// Trailing returns the count of unwalked bytes left when the walk stopped
// on a partial header or an overrun subframe. It is zero while the walk is
// in progress.
func (w *Walker) Trailing() int {
	if !w.done || w.cursor >= len(w.payload) {
		return 0
	}
	return len(w.payload) - w.cursor
}

// CapturedRegion returns the captured bytes of sf, or nil for empty and
// overrun subframes.
func (w *Walker) CapturedRegion(sf Subframe) []byte {
	if !sf.Captured() {
		return nil
	}
	return w.payload[sf.Offset : sf.Offset+int(sf.Header.CapturedLength)]
}
