// Package report renders capture and hardware counters for operators.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/stats"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// QueueReport pairs a queue name with its counters.
type QueueReport struct {
	Name  string            `json:"name"`
	Stats source.QueueStats `json:"stats"`
}

// Report is one rendering of every counter the tool keeps.
type Report struct {
	Time    time.Time              `json:"time"`
	Elapsed time.Duration          `json:"elapsed"`
	Final   bool                   `json:"final"`
	Totals  stats.Totals           `json:"totals"`
	Ports   []stats.PortSnapshot   `json:"ports"`
	Devices []stats.DeviceSnapshot `json:"devices"`
	Queues  []QueueReport          `json:"queues,omitempty"`

	// Hardware is nil when reconciliation is unavailable; HardwareError
	// then says why.
	Hardware      *hwstats.Delta `json:"hardware,omitempty"`
	HardwareError string         `json:"hardware_error,omitempty"`
}

// Input is what Build needs to assemble a Report.
type Input struct {
	Started time.Time
	Ports   int
	Devices []stats.DeviceSnapshot
	Queues  []QueueReport

	// Before and After are hardware snapshots; either may be nil.
	Before, After *hwstats.Snapshot
	HardwareErr   error
}

// Build assembles a report at now.
func Build(in Input, now time.Time, final bool) Report {
	r := Report{
		Time:    now,
		Elapsed: now.Sub(in.Started),
		Final:   final,
		Totals:  stats.SumDevices(in.Devices),
		Ports:   stats.SumPorts(in.Devices, in.Ports),
		Devices: in.Devices,
		Queues:  in.Queues,
	}

	switch {
	case in.HardwareErr != nil:
		r.HardwareError = in.HardwareErr.Error()
	case in.Before == nil || in.After == nil:
		r.HardwareError = "hardware counters not read"
	default:
		d := hwstats.Diff(*in.Before, *in.After)
		r.Hardware = &d
	}
	return r
}

// Write renders r in format, text by default.
func Write(w io.Writer, format string, r Report) error {
	if format == FormatJSON {
		return WriteJSON(w, r)
	}
	return WriteText(w, r)
}

// WriteJSON writes r as one JSON document.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes r in the operator console layout.
func WriteText(w io.Writer, r Report) error {
	p := &printer{w: w}

	p.printf("DGGEN Frames: %d\n", r.Totals.Datagrams)
	if r.Totals.MagicErrors != 0 {
		p.printf("Ignored %d datagrams due to incorrect magic values\n", r.Totals.MagicErrors)
	}
	if r.Totals.SequenceErrors != 0 {
		p.printf("Sequence discontinuities: %d\n", r.Totals.SequenceErrors)
	}
	if r.Totals.FrameCountMismatches != 0 {
		p.printf("Frame count mismatches: %d\n", r.Totals.FrameCountMismatches)
	}
	if r.Totals.Runts != 0 {
		p.printf("Runt datagrams: %d\n", r.Totals.Runts)
	}
	if r.Totals.UnknownPorts != 0 {
		p.printf("Subframes from unknown ports: %d\n", r.Totals.UnknownPorts)
	}

	for _, port := range r.Ports {
		p.printf("Port %d  Received subframes  : %d\n", port.Port, port.Subframes)
		p.printf("        Truncated subframes : %d\n", port.Truncated)
		p.printf("        Dropped subframes   : %d\n", port.Dropped)
		if port.IntegrityErrors != 0 {
			p.printf("        Incorrect FCS       : %d\n", port.IntegrityErrors)
		}
		p.printf("\n")
	}

	if len(r.Devices) > 1 {
		for _, d := range r.Devices {
			p.printf("Queue %-12s datagrams %d  last seq %d\n", d.Name, d.Datagrams, d.LastSequence)
		}
		p.printf("\n")
	}
	for _, q := range r.Queues {
		if q.Stats.NotDatagram != 0 || q.Stats.PoolExhausts != 0 || q.Stats.KernelDrops != 0 {
			p.printf("Queue %-12s not datagram %d  pool exhausted %d  kernel drops %d\n",
				q.Name, q.Stats.NotDatagram, q.Stats.PoolExhausts, q.Stats.KernelDrops)
		}
	}
	p.printf("\n")

	if r.Hardware == nil {
		p.printf("HW stats unavailable: %s\n", r.HardwareError)
		return p.err
	}

	h := r.Hardware
	p.printf("HW stats for this run\n")
	p.printf("  Frame cnt : %d\n", h.Generator.SeqNum)
	p.printf("  Size      : %d\n", h.Generator.SizeSettings)
	p.printf("  Timer     : %d\n", h.Generator.TimerSettings)
	p.printf("  In cnt    : %d\n", h.Generator.InSubframeCnt)
	p.printf("  Out cnt   : %d\n\n", h.Generator.OutSubframeCnt)

	for _, port := range h.Ports {
		p.printf("  Port %d  Total subframes       : %d\n", port.Port, port.TotalSubframes)
		p.printf("\t  Out packet count      : %d\n", port.OutPacketCount)
		p.printf("\t  Truncated full buffer : %d\n", port.BufferFullTrunc)
		p.printf("\t  Truncated packet size : %d\n", port.PacketSizeTrunc)
		p.printf("\t  Dropped full buffer   : %d\n", port.BufferFullDrop)
		p.printf("\t  Dropped user req      : %d\n", port.DropUserRequest)
		p.printf("\t  Truncated user req    : %d\n", port.TruncUserRequest)
		p.printf("\t  PHY rx errors         : %d\n", port.PhyRxErrors)
		p.printf("\n")
	}
	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
