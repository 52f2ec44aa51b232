package afpacket

import (
	"fmt"
)

// ring is the TPACKET_V3 ring layout handed to afpacket.NewTPacket.
type ring struct {
	frameSize int
	blockSize int
	numBlocks int
}

// ringLayout derives a ring layout from a memory budget and snap length
// under the PACKET_MMAP constraints:
//  1. frameSize is a multiple of TPACKET_ALIGNMENT (16)
//  2. blockSize is a multiple of pageSize, and of frameSize when that
//     fits in a 4 MiB block
//  3. blockSize * numBlocks approximates ringMB
func ringLayout(ringMB, snapLen, pageSize int) (ring, error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52
	const maxBlockSize = 4 << 20

	if ringMB <= 0 {
		return ring{}, fmt.Errorf("ring size must be positive, got %d MiB", ringMB)
	}
	if snapLen <= 0 {
		return ring{}, fmt.Errorf("snap_len must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return ring{}, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	r := ring{}
	r.frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	r.blockSize = lcm(pageSize, r.frameSize)
	if r.blockSize > maxBlockSize {
		// Too coarse: fit as many frames as a 4 MiB block allows, page aligned.
		r.blockSize = alignUp((maxBlockSize/r.frameSize)*r.frameSize, pageSize)
		if r.blockSize < r.frameSize {
			r.blockSize = alignUp(r.frameSize, pageSize)
		}
	}

	r.numBlocks = (ringMB << 20) / r.blockSize
	if r.numBlocks < 1 {
		r.numBlocks = 1
	}
	return r, nil
}

func alignUp(n, to int) int {
	return (n + to - 1) / to * to
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
