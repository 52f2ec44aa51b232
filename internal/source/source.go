// Package source defines receive queues that deliver DGGEN datagrams in bursts.
package source

import (
	"context"
	"time"
)

// Queue is one receive queue. A queue is owned by a single capture worker;
// implementations need not be safe for concurrent use.
type Queue interface {
	// Name identifies the queue in logs and reports.
	Name() string

	// ReceiveBurst fills bufs with up to len(bufs) datagrams and returns
	// the number filled. A zero count with a nil error is a normal empty
	// poll. core.ErrQueueExhausted signals that no more datagrams will
	// arrive; buffers returned alongside it are still valid.
	// Every returned buffer must be released by the caller.
	ReceiveBurst(ctx context.Context, bufs []*Buffer) (int, error)

	// Stats returns queue level counters.
	Stats() QueueStats

	Close() error
}

// QueueStats are the counters kept by a queue implementation.
type QueueStats struct {
	Frames       uint64 `json:"frames" yaml:"frames"`               // frames read from the underlying handle
	NotDatagram  uint64 `json:"not_datagram" yaml:"not_datagram"`   // frames rejected by decapsulation
	PoolExhausts uint64 `json:"pool_exhausts" yaml:"pool_exhausts"` // frames dropped for lack of a free buffer
	KernelDrops  uint64 `json:"kernel_drops" yaml:"kernel_drops"`   // drops reported by the socket
}

// Buffer is a pooled receive buffer holding one datagram.
type Buffer struct {
	Data      []byte
	Timestamp time.Time

	backing []byte
	pool    *Pool
}

// Release returns the buffer to its pool. The buffer must not be used afterwards.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil || b.Data == nil {
		return
	}
	b.Data = nil
	b.pool.put(b)
}
