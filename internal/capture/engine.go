package capture

import (
	"context"
	"log/slog"
	"sync"

	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/stats"
)

// Engine runs one Worker per receive queue.
type Engine struct {
	workers []*Worker
	devices []*stats.Device

	wg      sync.WaitGroup
	started bool
}

// NewEngine creates a worker and a device for each queue. Every device
// observes ports TAP ports.
func NewEngine(queues []source.Queue, ports int, cfg Config) *Engine {
	e := &Engine{}
	for i, q := range queues {
		name := ""
		if q != nil {
			name = q.Name()
		}
		dev := stats.NewDevice(i, name, ports)
		e.devices = append(e.devices, dev)
		e.workers = append(e.workers, NewWorker(i, q, dev, cfg))
	}
	return e
}

// Start launches every worker. It must be called at most once.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true

	for _, w := range e.workers {
		e.wg.Add(1)
		go func(w *Worker) {
			defer e.wg.Done()
			w.Run(ctx)
		}(w)
	}
	slog.Info("capture engine started", "workers", len(e.workers))
}

// Wait blocks until every worker has stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Done returns a channel closed once every worker has stopped.
func (e *Engine) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(ch)
	}()
	return ch
}

// Run starts the workers and waits for them.
func (e *Engine) Run(ctx context.Context) {
	e.Start(ctx)
	e.Wait()
}

// Workers returns the engine's workers in queue order.
func (e *Engine) Workers() []*Worker {
	return e.workers
}

// Devices returns a snapshot of every device in queue order.
func (e *Engine) Devices() []stats.DeviceSnapshot {
	out := make([]stats.DeviceSnapshot, len(e.devices))
	for i, d := range e.devices {
		out[i] = d.Snapshot()
	}
	return out
}
