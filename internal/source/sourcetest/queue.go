// Package sourcetest provides an in-memory receive queue for tests.
package sourcetest

import (
	"context"
	"sync"
	"time"

	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/source"
)

// Queue replays a fixed list of datagrams through a buffer pool.
// Once drained it either reports exhaustion or, with Hold set, keeps
// returning empty bursts until the context is cancelled.
type Queue struct {
	QueueName string
	Hold      bool
	// Err, when set, is returned once by the next ReceiveBurst.
	Err error

	mu       sync.Mutex
	pool     *source.Pool
	pending  [][]byte
	counters source.Counters
	polls    int
	closed   bool
}

// New returns a queue that delivers datagrams in order.
func New(name string, datagrams ...[]byte) *Queue {
	return &Queue{
		QueueName: name,
		pool:      source.NewPool(64, 16384),
		pending:   datagrams,
	}
}

func (q *Queue) Name() string { return q.QueueName }

// Push appends datagrams to the queue.
func (q *Queue) Push(datagrams ...[]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, datagrams...)
}

func (q *Queue) ReceiveBurst(ctx context.Context, bufs []*source.Buffer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.polls++

	if q.Err != nil {
		err := q.Err
		q.Err = nil
		return 0, err
	}

	n := 0
	for n < len(bufs) && len(q.pending) > 0 {
		b := q.pool.Get(q.pending[0], time.Now())
		if b == nil {
			break
		}
		q.pending = q.pending[1:]
		bufs[n] = b
		n++
	}
	if n == 0 && len(q.pending) == 0 {
		if q.Hold {
			return 0, nil
		}
		return 0, core.ErrQueueExhausted
	}
	return n, nil
}

func (q *Queue) Stats() source.QueueStats { return q.counters.Stats() }

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Polls counts ReceiveBurst calls.
func (q *Queue) Polls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.polls
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// InUse is the number of buffers not yet released by the consumer.
func (q *Queue) InUse() int64 { return q.pool.InUse() }

var _ source.Queue = (*Queue)(nil)
