package source

import (
	"sync/atomic"
	"time"
)

// Pool is a fixed set of equally sized receive buffers.
// Get never allocates; when every buffer is in flight it returns nil.
type Pool struct {
	free  chan *Buffer
	size  int
	inUse atomic.Int64
}

// NewPool allocates count buffers of size bytes each.
func NewPool(count, size int) *Pool {
	p := &Pool{
		free: make(chan *Buffer, count),
		size: size,
	}
	for i := 0; i < count; i++ {
		p.free <- &Buffer{backing: make([]byte, size), pool: p}
	}
	return p
}

// Get returns a free buffer holding a copy of data truncated to the buffer
// size, or nil when the pool is empty.
func (p *Pool) Get(data []byte, ts time.Time) *Buffer {
	select {
	case b := <-p.free:
		n := copy(b.backing, data)
		b.Data = b.backing[:n]
		b.Timestamp = ts
		p.inUse.Add(1)
		return b
	default:
		return nil
	}
}

func (p *Pool) put(b *Buffer) {
	p.inUse.Add(-1)
	p.free <- b
}

// BufferSize is the capacity of each buffer.
func (p *Pool) BufferSize() int {
	return p.size
}

// InUse is the number of buffers handed out and not yet released.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}
