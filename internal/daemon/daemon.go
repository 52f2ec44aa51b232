// Package daemon implements the capture run lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/dgcap/internal/capture"
	"firestige.xyz/dgcap/internal/config"
	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/metrics"
	"firestige.xyz/dgcap/internal/report"
	"firestige.xyz/dgcap/internal/source"
)

// Daemon owns the queues, workers and reporters of one capture run.
type Daemon struct {
	// Configuration
	config *config.Config
	out    io.Writer

	// Core components
	queues        []source.Queue
	engine        *capture.Engine
	hw            hwstats.Reader    // nil if hardware disabled or unavailable
	metricsServer *metrics.Server   // nil if metrics disabled
	publisher     *report.Publisher // nil if kafka disabled

	// Hardware snapshot taken before the workers started.
	before *hwstats.Snapshot
	hwErr  error

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	sigChan   chan os.Signal
	reporters sync.WaitGroup
	started   time.Time
	now       func() time.Time
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithQueues replaces the queues built from configuration.
func WithQueues(queues ...source.Queue) Option {
	return func(d *Daemon) { d.queues = queues }
}

// WithHardwareReader replaces the UIO reader built from configuration.
func WithHardwareReader(r hwstats.Reader) Option {
	return func(d *Daemon) { d.hw = r }
}

// New creates a Daemon writing its reports to out.
func New(cfg *config.Config, out io.Writer, opts ...Option) *Daemon {
	d := &Daemon{
		config: cfg,
		out:    out,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start opens the queues, takes the before-snapshot and launches the
// workers, the periodic reporter and the metrics server. Queue errors are
// fatal; hardware and reporter errors are logged and the run continues.
func (d *Daemon) Start() error {
	slog.Info("starting dgcap",
		"queues", len(d.config.Capture.Queues),
		"ports", d.config.Capture.Ports,
	)

	// 1. Receive queues
	if d.queues == nil {
		queues, err := openQueues(d.config.Capture)
		if err != nil {
			return fmt.Errorf("failed to open queues: %w", err)
		}
		d.queues = queues
	}
	if len(d.queues) == 0 {
		return fmt.Errorf("%w: no receive queues configured", core.ErrConfigInvalid)
	}

	// 2. Hardware before-snapshot
	d.initHardware()

	// 3. Engine
	d.engine = capture.NewEngine(d.queues, d.config.Capture.Ports, capture.Config{
		BurstSize:    d.config.Capture.BurstSize,
		LockOSThread: d.config.Capture.LockOSThread,
		DumpLimit:    d.config.Capture.DumpLimit,
		WarnLimit:    d.config.Capture.WarnLimit,
		WarnWindow:   d.config.Capture.WarnWindow,
	})

	// 4. Metrics server
	if err := d.startMetrics(); err != nil {
		d.closeQueues()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 5. Kafka publisher (non-fatal)
	if d.config.Report.Kafka.Enabled {
		if err := d.startPublisher(); err != nil {
			slog.Error("failed to start kafka report publisher", "error", err)
		}
	}

	// 6. Workers and periodic report
	d.started = d.now()
	d.engine.Start(d.ctx)
	d.startConsole()

	slog.Info("dgcap started")
	return nil
}

// Run blocks until a shutdown signal arrives or every worker has stopped,
// then finishes the run.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(d.sigChan)

	slog.Info("capture running, waiting for signals")

	select {
	case sig := <-d.sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		d.Shutdown()
	case <-d.engine.Done():
		slog.Info("all workers stopped")
	case <-d.ctx.Done():
		slog.Info("context cancelled", "error", d.ctx.Err())
	}

	return d.Stop()
}

// Shutdown requests every worker to stop after its current burst.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Stop waits for the workers, takes the after-snapshot, writes the final
// report and releases every resource.
func (d *Daemon) Stop() error {
	slog.Info("initiating shutdown")

	// 1. Workers
	d.cancel()
	d.engine.Wait()

	// 2. Periodic reporter
	d.reporters.Wait()

	// 3. Final report
	final := d.finalReport()
	if err := report.Write(d.out, d.config.Report.Format, final); err != nil {
		slog.Error("failed to write final report", "error", err)
	}
	if d.publisher != nil {
		d.publisher.PublishLogged(context.Background(), final)
	}

	// 4. Metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 5. Publisher and queues
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			slog.Error("error closing kafka publisher", "error", err)
		}
	}
	d.closeQueues()

	slog.Info("dgcap stopped",
		"datagrams", final.Totals.Datagrams,
		"elapsed", final.Elapsed)
	return nil
}

func (d *Daemon) initHardware() {
	hw := d.config.Hardware
	if !hw.Enabled && d.hw == nil {
		d.hwErr = fmt.Errorf("%w: disabled by configuration", core.ErrSnapshotUnavailable)
		return
	}

	if d.hw == nil {
		r, err := hwstats.NewUIOReader(HardwareLayout(hw, d.config.Capture.Ports))
		if err != nil {
			d.hwErr = err
			slog.Warn("hardware counters unavailable", "error", err)
			return
		}
		d.hw = r
	}

	snap, err := d.hw.ReadSnapshot()
	if err != nil {
		d.hwErr = err
		slog.Warn("hardware before-snapshot failed, reconciliation unavailable", "error", err)
		return
	}
	d.before = &snap
	slog.Info("hardware before-snapshot taken",
		"seq_num", snap.Generator.SeqNum,
		"ports", len(snap.Ports))
}

// readHardware takes a snapshot for a live or final report.
func (d *Daemon) readHardware() (*hwstats.Snapshot, error) {
	if d.before == nil {
		return nil, d.hwErr
	}
	snap, err := d.hw.ReadSnapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (d *Daemon) buildReport(now time.Time, final bool) report.Report {
	in := report.Input{
		Started: d.started,
		Ports:   d.config.Capture.Ports,
		Devices: d.engine.Devices(),
		Queues:  d.queueReports(),
		Before:  d.before,
	}
	in.After, in.HardwareErr = d.readHardware()
	return report.Build(in, now, final)
}

func (d *Daemon) finalReport() report.Report {
	r := d.buildReport(d.now(), true)
	if r.HardwareError != "" && d.before != nil {
		slog.Warn("hardware after-snapshot failed, reconciliation unavailable", "error", r.HardwareError)
	}
	return r
}

func (d *Daemon) queueReports() []report.QueueReport {
	out := make([]report.QueueReport, 0, len(d.queues))
	for _, q := range d.queues {
		if q == nil {
			continue
		}
		out = append(out, report.QueueReport{Name: q.Name(), Stats: q.Stats()})
	}
	return out
}

func (d *Daemon) startConsole() {
	if d.config.Report.Interval <= 0 {
		return
	}

	c := &report.Console{
		Out:      d.out,
		Interval: d.config.Report.Interval,
		Format:   d.config.Report.Format,
		Clear:    d.config.Report.ClearScreen,
		Snapshot: func(now time.Time) report.Report {
			return d.buildReport(now, false)
		},
	}
	if d.publisher != nil {
		c.Publish = d.publisher.PublishLogged
	}

	// The console stops with the workers so the final report is the last thing drawn.
	d.reporters.Add(1)
	go func() {
		defer d.reporters.Done()
		ctx, cancel := context.WithCancel(d.ctx)
		defer cancel()
		go func() {
			select {
			case <-d.engine.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		c.Run(ctx)
	}()
}

func (d *Daemon) startPublisher() error {
	k := d.config.Report.Kafka
	p, err := report.NewPublisher(report.KafkaConfig{
		Brokers:     k.Brokers,
		Topic:       k.Topic,
		Compression: k.Compression,
	})
	if err != nil {
		return err
	}
	d.publisher = p
	slog.Info("kafka report publisher started", "brokers", k.Brokers, "topic", k.Topic)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	collector := metrics.NewCollector(d.metricsSample)
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, metrics.NewRegistry(collector))
	if err := d.metricsServer.Start(d.ctx); err != nil {
		d.metricsServer = nil
		return err
	}
	return nil
}

func (d *Daemon) metricsSample() metrics.Sample {
	s := metrics.Sample{Devices: d.engine.Devices()}
	for _, q := range d.queueReports() {
		s.Queues = append(s.Queues, metrics.QueueSample{Name: q.Name, Stats: q.Stats})
	}
	if d.before != nil {
		if snap, err := d.hw.ReadSnapshot(); err == nil {
			s.Hardware = &snap
		}
	}
	return s
}

func (d *Daemon) closeQueues() {
	var errs []error
	for _, q := range d.queues {
		if q == nil {
			continue
		}
		if err := q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue %s: %w", q.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("error closing queues", "error", err)
	}
}
