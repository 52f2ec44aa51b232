// Package protocol implements the DGGEN datagram wire format: header codecs,
// the subframe walker and the subframe integrity check.
package protocol

import "encoding/binary"

const (
	// Magic identifies a DGGEN datagram.
	Magic = 0x0002

	DatagramHeaderLen = 8
	SubframeHeaderLen = 16

	// Alignment is the padding boundary of every subframe payload region.
	Alignment = 4

	// MinCapturedLen is the smallest captured length that holds a preamble.
	MinCapturedLen = 8

	// PreambleLen bytes lead every captured region and are not covered by the FCS.
	PreambleLen = 8

	// DefaultPorts is the number of TAP ports behind one datagram generator.
	DefaultPorts = 4
)

// DatagramHeader is the fixed header that starts every datagram.
type DatagramHeader struct {
	Magic          uint16
	FrameCount     uint16 // declared number of subframes
	SequenceNumber uint32
}

// SubframeHeader precedes each captured frame inside a datagram.
// Bytes 4 and 6 of the wire header are reserved and not decoded.
type SubframeHeader struct {
	OriginalLength  uint16
	CapturedLength  uint16
	PayloadSpecific uint8
	PortNumber      uint8
	Timestamp       uint64
}

// Truncated reports whether the frame was cut short by the capture hardware.
func (h SubframeHeader) Truncated() bool {
	return h.CapturedLength != h.OriginalLength
}

// DecodeDatagramHeader decodes the 8-byte datagram header at off.
// The caller guarantees len(buf) >= off+DatagramHeaderLen.
func DecodeDatagramHeader(buf []byte, off int) DatagramHeader {
	b := buf[off : off+DatagramHeaderLen]
	return DatagramHeader{
		Magic:          binary.BigEndian.Uint16(b[0:2]),
		FrameCount:     binary.BigEndian.Uint16(b[2:4]),
		SequenceNumber: binary.BigEndian.Uint32(b[4:8]),
	}
}

// DecodeSubframeHeader decodes the 16-byte subframe header at off.
// The caller guarantees len(buf) >= off+SubframeHeaderLen.
func DecodeSubframeHeader(buf []byte, off int) SubframeHeader {
	b := buf[off : off+SubframeHeaderLen]
	return SubframeHeader{
		OriginalLength:  binary.BigEndian.Uint16(b[0:2]),
		CapturedLength:  binary.BigEndian.Uint16(b[2:4]),
		PayloadSpecific: b[5],
		PortNumber:      b[7],
		Timestamp:       binary.BigEndian.Uint64(b[8:16]),
	}
}

// PutDatagramHeader encodes h into the first 8 bytes of buf.
func PutDatagramHeader(buf []byte, h DatagramHeader) {
	binary.BigEndian.PutUint16(buf[0:2], h.Magic)
	binary.BigEndian.PutUint16(buf[2:4], h.FrameCount)
	binary.BigEndian.PutUint32(buf[4:8], h.SequenceNumber)
}

// PutSubframeHeader encodes h into the first 16 bytes of buf. Reserved bytes are zeroed.
func PutSubframeHeader(buf []byte, h SubframeHeader) {
	binary.BigEndian.PutUint16(buf[0:2], h.OriginalLength)
	binary.BigEndian.PutUint16(buf[2:4], h.CapturedLength)
	buf[4] = 0
	buf[5] = h.PayloadSpecific
	buf[6] = 0
	buf[7] = h.PortNumber
	binary.BigEndian.PutUint64(buf[8:16], h.Timestamp)
}

// AlignedLength rounds captured up to the next multiple of Alignment.
func AlignedLength(captured uint16) int {
	n := int(captured)
	if rem := n % Alignment; rem != 0 {
		n += Alignment - rem
	}
	return n
}
