package protocol

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
)

func TestCheckIntegrity(t *testing.T) {
	frame := []byte("the quick brown fox jumps over the lazy dog")

	tests := []struct {
		name string
		data []byte
		want IntegrityResult
	}{
		{"valid fcs", AppendFCS(append([]byte{}, frame...)), IntegrityOK},
		{"big endian fcs", binary.BigEndian.AppendUint32(append([]byte{}, frame...), crc32.ChecksumIEEE(frame)), IntegrityMismatch},
		{"corrupted body", func() []byte {
			b := AppendFCS(append([]byte{}, frame...))
			b[3] ^= 0x01
			return b
		}(), IntegrityMismatch},
		{"missing fcs", append([]byte{}, frame...), IntegrityMismatch},
		{"empty", nil, IntegrityMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckIntegrity(tt.data); got != tt.want {
				t.Errorf("CheckIntegrity() = %s, expected %s", got, tt.want)
			}
		})
	}
}

func TestResidueIsComplementOfRawRemainder(t *testing.T) {
	// 0xDEBB20E3 is the CRC-32 remainder before the final inversion.
	if FCSResidue != ^uint32(0xDEBB20E3) {
		t.Errorf("Expected residue 0x%08x, got 0x%08x", ^uint32(0xDEBB20E3), uint32(FCSResidue))
	}
}

func TestIntegrityResultString(t *testing.T) {
	if IntegrityOK.String() != "ok" || IntegrityMismatch.String() != "mismatch" || IntegritySkipped.String() != "skipped" {
		t.Error("unexpected IntegrityResult names")
	}
}

func BenchmarkCheckIntegrity(b *testing.B) {
	data := AppendFCS(make([]byte, 1514))

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CheckIntegrity(data)
	}
}
