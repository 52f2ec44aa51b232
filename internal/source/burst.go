package source

import (
	"sync/atomic"

	"github.com/google/gopacket"
)

// ReadFunc reads one frame from a capture handle. The returned slice may be
// reused by the handle on the next call.
type ReadFunc func() ([]byte, gopacket.CaptureInfo, error)

// Counters are the atomic backing of QueueStats.
type Counters struct {
	frames       atomic.Uint64
	notDatagram  atomic.Uint64
	poolExhausts atomic.Uint64
	kernelDrops  atomic.Uint64
}

// SetKernelDrops records the drop count reported by the socket.
func (c *Counters) SetKernelDrops(n uint64) {
	c.kernelDrops.Store(n)
}

// Stats returns the current counter values.
func (c *Counters) Stats() QueueStats {
	return QueueStats{
		Frames:       c.frames.Load(),
		NotDatagram:  c.notDatagram.Load(),
		PoolExhausts: c.poolExhausts.Load(),
		KernelDrops:  c.kernelDrops.Load(),
	}
}

// Filler turns a frame reader into bursts of pooled datagram buffers.
type Filler struct {
	Read     ReadFunc
	Pool     *Pool
	Decap    *Decapsulator
	Counters *Counters
}

// Fill reads frames into bufs until it is full or Read fails. The error from
// Read is returned together with the number of buffers already filled.
func (f *Filler) Fill(bufs []*Buffer) (int, error) {
	n := 0
	for n < len(bufs) {
		frame, ci, err := f.Read()
		if err != nil {
			return n, err
		}
		f.Counters.frames.Add(1)

		dg, err := f.Decap.Datagram(frame)
		if err != nil {
			f.Counters.notDatagram.Add(1)
			continue
		}

		b := f.Pool.Get(dg, ci.Timestamp)
		if b == nil {
			f.Counters.poolExhausts.Add(1)
			continue
		}
		bufs[n] = b
		n++
	}
	return n, nil
}
