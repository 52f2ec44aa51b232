// Package capture runs the per-queue datagram capture loops.
package capture

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/protocol"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/stats"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateSteady
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateSteady:
		return "steady"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultBurstSize = 16
	defaultDumpLimit = 256
)

// Config holds the worker tunables.
type Config struct {
	BurstSize    int
	LockOSThread bool
	DumpLimit    int // bytes of a bad datagram logged at debug level
	WarnLimit    int // warnings per anomaly kind per window, zero for unlimited
	WarnWindow   time.Duration
}

func (c *Config) applyDefaults() {
	if c.BurstSize <= 0 {
		c.BurstSize = defaultBurstSize
	}
	if c.DumpLimit <= 0 {
		c.DumpLimit = defaultDumpLimit
	}
}

// Worker owns one receive queue and the device counters it feeds.
// The device must not be written by anything else.
type Worker struct {
	id     int
	queue  source.Queue
	device *stats.Device
	cfg    Config

	state    atomic.Int32
	expected uint32
	bufs     []*source.Buffer
	limiter  *WarnLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker binds queue and device to a new worker. A nil queue yields an
// idle worker whose Run returns immediately.
func NewWorker(id int, queue source.Queue, device *stats.Device, cfg Config) *Worker {
	cfg.applyDefaults()

	name := ""
	if queue != nil {
		name = queue.Name()
	}

	return &Worker{
		id:      id,
		queue:   queue,
		device:  device,
		cfg:     cfg,
		bufs:    make([]*source.Buffer, cfg.BurstSize),
		limiter: NewWarnLimiter(WarnLimiterConfig{MaxPerWindow: cfg.WarnLimit, Window: cfg.WarnWindow}),
		logger:  slog.With("worker", id, "queue", name),
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Device returns the counters fed by this worker.
func (w *Worker) Device() *stats.Device {
	return w.device
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run polls the queue until ctx is cancelled or the queue is exhausted.
// Cancellation is observed between bursts; a burst in progress is finished.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil {
		w.logger.Debug("no queue assigned, worker idle")
		return
	}

	if w.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	w.setState(StateInitializing)
	defer w.setState(StateStopped)
	w.logger.Info("capture worker started", "burst_size", w.cfg.BurstSize)

	for {
		if ctx.Err() != nil {
			w.setState(StateDraining)
			w.logger.Info("capture worker stopping", "reason", "cancelled",
				"datagrams", w.device.Datagrams.Load())
			return
		}

		n, err := w.queue.ReceiveBurst(ctx, w.bufs)
		for i := 0; i < n; i++ {
			w.process(w.bufs[i])
			w.bufs[i] = nil
		}

		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrQueueExhausted) || errors.Is(err, core.ErrQueueClosed) {
			w.setState(StateDraining)
			w.logger.Info("capture worker stopping", "reason", err.Error(),
				"datagrams", w.device.Datagrams.Load())
			return
		}
		if ctx.Err() != nil {
			continue
		}
		w.device.QueueErrors.Add(1)
		w.warn(AnomalyQueue, "receive burst failed", "error", err)
	}
}

// process accounts for one datagram and releases its buffer.
func (w *Worker) process(buf *source.Buffer) {
	defer buf.Release()

	data := buf.Data
	dev := w.device
	dev.Datagrams.Add(1)

	if w.State() == StateSteady {
		w.expected++
	}

	if len(data) < protocol.DatagramHeaderLen {
		dev.Runts.Add(1)
		w.warn(AnomalyRunt, "datagram shorter than header", "size", len(data))
		w.dump("runt datagram", data)
		return
	}

	hdr := protocol.DecodeDatagramHeader(data, 0)
	if hdr.Magic != protocol.Magic {
		dev.MagicErrors.Add(1)
		w.warn(AnomalyMagic, "failed magic value",
			"magic", hdr.Magic, "size", len(data))
		w.dump("bad magic datagram", data)
		return
	}

	if w.State() == StateInitializing {
		w.expected = hdr.SequenceNumber
		w.setState(StateSteady)
		w.logger.Info("sequence baseline", "seq", hdr.SequenceNumber)
	}

	walked := w.walk(hdr, data[protocol.DatagramHeaderLen:])

	if walked != int(hdr.FrameCount) {
		dev.FrameCountMismatches.Add(1)
		w.warn(AnomalyFrameCount, "frame count mismatch",
			"seq", hdr.SequenceNumber, "declared", hdr.FrameCount, "walked", walked)
	}

	if w.expected != hdr.SequenceNumber {
		dev.SequenceErrors.Add(1)
		w.warn(AnomalySequence, "sequence discontinuity",
			"expected", w.expected, "observed", hdr.SequenceNumber)
		w.expected = hdr.SequenceNumber
	}

	dev.LastSequence.Store(hdr.SequenceNumber)
}

// walk updates port counters for every subframe of payload and returns the
// number of captured subframes.
func (w *Worker) walk(hdr protocol.DatagramHeader, payload []byte) int {
	dev := w.device
	walker := protocol.NewWalker(payload)
	captured := 0

	for sf := range walker.All() {
		port := dev.Port(sf.Header.PortNumber)
		if port == nil {
			dev.UnknownPorts.Add(1)
			w.warn(AnomalyUnknownPort, "subframe from unknown port",
				"seq", hdr.SequenceNumber, "subframe", sf.Index, "port", sf.Header.PortNumber)
			continue
		}

		if sf.Header.Truncated() {
			port.Truncated.Add(1)
		}

		switch {
		case sf.Overrun:
			port.Dropped.Add(1)
			w.warn(AnomalyOverrun, "subframe runs past datagram end",
				"seq", hdr.SequenceNumber, "subframe", sf.Index,
				"captured_len", sf.Header.CapturedLength, "remaining", len(payload)-sf.Offset)
			continue
		case sf.Empty:
			continue
		}

		if sf.Integrity == protocol.IntegrityMismatch {
			port.IntegrityErrors.Add(1)
			w.warn(AnomalyIntegrity, "incorrect FCS value",
				"seq", hdr.SequenceNumber, "subframe", captured, "port", sf.Header.PortNumber,
				"datagram_size", len(payload)+protocol.DatagramHeaderLen)
			w.dump("bad FCS subframe", walker.CapturedRegion(sf))
		}

		port.Subframes.Add(1)
		port.Bytes.Add(uint64(sf.Header.CapturedLength))
		captured++
	}

	if t := walker.Trailing(); t > 0 {
		w.logger.Debug("trailing bytes after last subframe",
			"seq", hdr.SequenceNumber, "bytes", t)
	}
	return captured
}

func (w *Worker) warn(kind Anomaly, msg string, args ...any) {
	ok, suppressed := w.limiter.Allow(kind, w.now())
	if !ok {
		return
	}
	if suppressed > 0 {
		args = append(args, "suppressed", suppressed)
	}
	w.logger.Warn(msg, append(args, "anomaly", kind.String())...)
}

func (w *Worker) dump(msg string, data []byte) {
	if !w.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	n := min(len(data), w.cfg.DumpLimit)
	w.logger.Debug(msg, "size", len(data), "hex", hex.EncodeToString(data[:n]))
}
