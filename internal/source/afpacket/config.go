package afpacket

import "time"

const (
	defaultSnapLen     = 16384
	defaultBlockSize   = 4 << 20
	defaultNumBlocks   = 64
	defaultPollTimeout = 10 * time.Millisecond
)

// Config describes one AF_PACKET receive queue.
type Config struct {
	Name          string
	Interface     string
	BPFFilter     string
	FanoutID      uint16 // zero disables fanout
	SnapLen       int
	BlockSize     int // BlockSize * NumBlocks is the ring memory budget
	NumBlocks     int
	PollTimeout   time.Duration
	Encapsulation string
	UDPPort       uint16
}

func (c *Config) applyDefaults() {
	if c.SnapLen <= 0 {
		c.SnapLen = defaultSnapLen
	}
	if c.BlockSize <= 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.NumBlocks <= 0 {
		c.NumBlocks = defaultNumBlocks
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.PollTimeout < pollTimeoutFloor {
		c.PollTimeout = pollTimeoutFloor
	}
}

// ringMB is the ring budget in MiB, at least 1.
func (c *Config) ringMB() int {
	mb := (c.BlockSize * c.NumBlocks) >> 20
	if mb < 1 {
		mb = 1
	}
	return mb
}

// pollTimeoutFloor keeps the socket from spinning on a tiny timeout.
const pollTimeoutFloor = time.Millisecond
