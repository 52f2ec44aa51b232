// Package prototest builds DGGEN datagrams for tests.
package prototest

import (
	"firestige.xyz/dgcap/internal/protocol"
)

// Frame describes one subframe to encode.
type Frame struct {
	Port uint8
	// Body is the Ethernet frame without FCS. A valid FCS is appended
	// unless BadFCS is set.
	Body   []byte
	BadFCS bool
	// OriginalLength overrides the original length field when non-zero.
	OriginalLength uint16
	// CapturedLength overrides the captured length field when non-zero.
	// The encoded region is still Preamble + Body + FCS, padded to Alignment.
	CapturedLength uint16
	Timestamp      uint64
}

// Datagram describes one datagram to encode.
type Datagram struct {
	Magic    uint16 // zero means protocol.Magic
	Sequence uint32
	// FrameCount overrides the declared count; zero declares len(Frames).
	FrameCount int
	Frames     []Frame
}

// Preamble is the 8-byte Ethernet preamble and start frame delimiter.
var Preamble = []byte{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0xD5}

// Encode returns the wire form of d.
func Encode(d Datagram) []byte {
	magic := d.Magic
	if magic == 0 {
		magic = protocol.Magic
	}
	count := len(d.Frames)
	if d.FrameCount != 0 {
		count = d.FrameCount
	}

	buf := make([]byte, protocol.DatagramHeaderLen)
	protocol.PutDatagramHeader(buf, protocol.DatagramHeader{
		Magic:          magic,
		FrameCount:     uint16(count),
		SequenceNumber: d.Sequence,
	})
	for _, f := range d.Frames {
		buf = AppendSubframe(buf, f)
	}
	return buf
}

// AppendSubframe appends the header, captured region and padding of f to buf.
func AppendSubframe(buf []byte, f Frame) []byte {
	region := append([]byte{}, Preamble...)
	if f.BadFCS {
		region = append(region, f.Body...)
		region = append(region, 0xDE, 0xAD, 0xBE, 0xEF)
	} else {
		region = append(region, protocol.AppendFCS(append([]byte{}, f.Body...))...)
	}

	captured := uint16(len(region))
	if f.CapturedLength != 0 {
		captured = f.CapturedLength
	}
	original := captured
	if f.OriginalLength != 0 {
		original = f.OriginalLength
	}

	hdr := make([]byte, protocol.SubframeHeaderLen)
	protocol.PutSubframeHeader(hdr, protocol.SubframeHeader{
		OriginalLength: original,
		CapturedLength: captured,
		PortNumber:     f.Port,
		Timestamp:      f.Timestamp,
	})
	buf = append(buf, hdr...)
	buf = append(buf, region...)
	for pad := protocol.AlignedLength(uint16(len(region))) - len(region); pad > 0; pad-- {
		buf = append(buf, 0)
	}
	return buf
}

// Body returns an n-byte frame body filled with a counting pattern.
func Body(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
