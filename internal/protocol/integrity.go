package protocol

import "hash/crc32"

// FCSResidue is the CRC-32 of any byte stream that ends with its own
// little-endian IEEE 802.3 frame check sequence.
const FCSResidue = 0x2144DF1C

// FCSLen is the size of the trailing frame check sequence.
const FCSLen = 4

// IntegrityResult classifies a subframe integrity check.
type IntegrityResult uint8

const (
	IntegritySkipped IntegrityResult = iota
	IntegrityOK
	IntegrityMismatch
)

func (r IntegrityResult) String() string {
	switch r {
	case IntegrityOK:
		return "ok"
	case IntegrityMismatch:
		return "mismatch"
	default:
		return "skipped"
	}
}

// CheckIntegrity computes CRC-32 over data, which must include the trailing
// FCS, and compares it with FCSResidue.
func CheckIntegrity(data []byte) IntegrityResult {
	if crc32.ChecksumIEEE(data) != FCSResidue {
		return IntegrityMismatch
	}
	return IntegrityOK
}

// AppendFCS appends the little-endian CRC-32 of frame to frame.
func AppendFCS(frame []byte) []byte {
	sum := crc32.ChecksumIEEE(frame)
	return append(frame, byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24))
}
