// Package metrics exposes capture and hardware counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/stats"
)

// QueueSample is the counter set of one receive queue.
type QueueSample struct {
	Name  string
	Stats source.QueueStats
}

// Sample is everything exported on one scrape.
type Sample struct {
	Devices  []stats.DeviceSnapshot
	Queues   []QueueSample
	Hardware *hwstats.Snapshot // nil when unavailable
}

// Collector implements prometheus.Collector, reading the counters on each scrape.
type Collector struct {
	sample func() Sample

	datagramsTotal      *prometheus.Desc
	lastSequence        *prometheus.Desc
	datagramErrorsTotal *prometheus.Desc

	subframesTotal       *prometheus.Desc
	subframeBytesTotal   *prometheus.Desc
	subframeAnomalyTotal *prometheus.Desc

	queueFramesTotal   *prometheus.Desc
	queueRejectedTotal *prometheus.Desc

	hwGenerator *prometheus.Desc
	hwPort      *prometheus.Desc
}

// NewCollector creates a collector that calls sample on every scrape.
func NewCollector(sample func() Sample) *Collector {
	return &Collector{
		sample: sample,

		datagramsTotal: prometheus.NewDesc(
			"dgcap_datagrams_total",
			"Datagrams received per queue.",
			[]string{"queue"}, nil,
		),
		lastSequence: prometheus.NewDesc(
			"dgcap_last_sequence",
			"Sequence number of the last datagram processed.",
			[]string{"queue"}, nil,
		),
		datagramErrorsTotal: prometheus.NewDesc(
			"dgcap_datagram_errors_total",
			"Datagram level anomalies per queue.",
			[]string{"queue", "kind"}, nil,
		),
		subframesTotal: prometheus.NewDesc(
			"dgcap_subframes_total",
			"Captured subframes per queue and TAP port.",
			[]string{"queue", "port"}, nil,
		),
		subframeBytesTotal: prometheus.NewDesc(
			"dgcap_subframe_bytes_total",
			"Captured subframe bytes per queue and TAP port.",
			[]string{"queue", "port"}, nil,
		),
		subframeAnomalyTotal: prometheus.NewDesc(
			"dgcap_subframe_anomalies_total",
			"Subframe anomalies per queue and TAP port.",
			[]string{"queue", "port", "kind"}, nil,
		),
		queueFramesTotal: prometheus.NewDesc(
			"dgcap_queue_frames_total",
			"Frames read from the underlying capture handle.",
			[]string{"queue"}, nil,
		),
		queueRejectedTotal: prometheus.NewDesc(
			"dgcap_queue_rejected_total",
			"Frames that never reached a capture worker.",
			[]string{"queue", "reason"}, nil,
		),
		hwGenerator: prometheus.NewDesc(
			"dgcap_hw_generator",
			"Raw DGGEN register values. 32-bit, may wrap.",
			[]string{"register"}, nil,
		),
		hwPort: prometheus.NewDesc(
			"dgcap_hw_port",
			"Raw TAP port register values. 32-bit, may wrap.",
			[]string{"port", "register"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.datagramsTotal
	ch <- c.lastSequence
	ch <- c.datagramErrorsTotal
	ch <- c.subframesTotal
	ch <- c.subframeBytesTotal
	ch <- c.subframeAnomalyTotal
	ch <- c.queueFramesTotal
	ch <- c.queueRejectedTotal
	ch <- c.hwGenerator
	ch <- c.hwPort
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.sample()

	for _, d := range s.Devices {
		c.collectDevice(ch, d)
	}

	for _, q := range s.Queues {
		ch <- prometheus.MustNewConstMetric(c.queueFramesTotal, prometheus.CounterValue, float64(q.Stats.Frames), q.Name)
		ch <- prometheus.MustNewConstMetric(c.queueRejectedTotal, prometheus.CounterValue, float64(q.Stats.NotDatagram), q.Name, "not_datagram")
		ch <- prometheus.MustNewConstMetric(c.queueRejectedTotal, prometheus.CounterValue, float64(q.Stats.PoolExhausts), q.Name, "pool_exhausted")
		ch <- prometheus.MustNewConstMetric(c.queueRejectedTotal, prometheus.CounterValue, float64(q.Stats.KernelDrops), q.Name, "kernel_drop")
	}

	if s.Hardware != nil {
		c.collectHardware(ch, s.Hardware)
	}
}

func (c *Collector) collectDevice(ch chan<- prometheus.Metric, d stats.DeviceSnapshot) {
	q := d.Name
	ch <- prometheus.MustNewConstMetric(c.datagramsTotal, prometheus.CounterValue, float64(d.Datagrams), q)
	ch <- prometheus.MustNewConstMetric(c.lastSequence, prometheus.GaugeValue, float64(d.LastSequence), q)

	errs := []struct {
		kind  string
		value uint64
	}{
		{"magic", d.MagicErrors},
		{"sequence", d.SequenceErrors},
		{"frame_count", d.FrameCountMismatches},
		{"unknown_port", d.UnknownPorts},
		{"runt", d.Runts},
		{"queue", d.QueueErrors},
	}
	for _, e := range errs {
		ch <- prometheus.MustNewConstMetric(c.datagramErrorsTotal, prometheus.CounterValue, float64(e.value), q, e.kind)
	}

	for _, p := range d.Ports {
		port := strconv.Itoa(p.Port)
		ch <- prometheus.MustNewConstMetric(c.subframesTotal, prometheus.CounterValue, float64(p.Subframes), q, port)
		ch <- prometheus.MustNewConstMetric(c.subframeBytesTotal, prometheus.CounterValue, float64(p.Bytes), q, port)
		ch <- prometheus.MustNewConstMetric(c.subframeAnomalyTotal, prometheus.CounterValue, float64(p.Truncated), q, port, "truncated")
		ch <- prometheus.MustNewConstMetric(c.subframeAnomalyTotal, prometheus.CounterValue, float64(p.Dropped), q, port, "dropped")
		ch <- prometheus.MustNewConstMetric(c.subframeAnomalyTotal, prometheus.CounterValue, float64(p.IntegrityErrors), q, port, "integrity")
	}
}

func (c *Collector) collectHardware(ch chan<- prometheus.Metric, h *hwstats.Snapshot) {
	g := h.Generator
	gen := []struct {
		name  string
		value uint32
	}{
		{"seq_num", g.SeqNum},
		{"size_settings", g.SizeSettings},
		{"timer_settings", g.TimerSettings},
		{"in_subframe_cnt", g.InSubframeCnt},
		{"out_subframe_cnt", g.OutSubframeCnt},
	}
	for _, r := range gen {
		ch <- prometheus.MustNewConstMetric(c.hwGenerator, prometheus.GaugeValue, float64(r.value), r.name)
	}

	for i, p := range h.Ports {
		port := strconv.Itoa(i)
		regs := []struct {
			name  string
			value uint32
		}{
			{"bit_field", p.BitField},
			{"total_subframes", p.TotalSubframes},
			{"buffer_full_trunc", p.BufferFullTrunc},
			{"packet_size_trunc", p.PacketSizeTrunc},
			{"buffer_full_drop", p.BufferFullDrop},
			{"out_packet_count", p.OutPacketCount},
			{"trunc_user_req", p.TruncUserRequest},
			{"phy_rxerr", p.PhyRxErrors},
			{"drop_user_req", p.DropUserRequest},
		}
		for _, r := range regs {
			ch <- prometheus.MustNewConstMetric(c.hwPort, prometheus.GaugeValue, float64(r.value), port, r.name)
		}
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
