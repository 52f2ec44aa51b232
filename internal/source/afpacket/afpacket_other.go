//go:build !linux

package afpacket

import (
	"context"
	"fmt"

	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/source"
)

// Queue is unavailable outside Linux.
type Queue struct{}

// Open always fails on this platform.
func Open(cfg Config, _ *source.Pool) (*Queue, error) {
	return nil, fmt.Errorf("afpacket queue %q: %w", cfg.Name, core.ErrUnsupported)
}

func (q *Queue) Name() string { return "" }

func (q *Queue) ReceiveBurst(context.Context, []*source.Buffer) (int, error) {
	return 0, core.ErrUnsupported
}

func (q *Queue) Stats() source.QueueStats { return source.QueueStats{} }

func (q *Queue) Close() error { return nil }
