// Package stats holds the software capture counters.
//
// Every Device is written by exactly one capture worker and read by any number
// of reporters. Counters are individually atomic; a snapshot is not a
// consistent cut across fields, which is acceptable for monitoring output.
package stats

import (
	"sync/atomic"
)

// Port contains the counters of one TAP port as seen by one worker.
type Port struct {
	Subframes       atomic.Uint64
	Truncated       atomic.Uint64 // captured length != original length
	Dropped         atomic.Uint64 // captured region ran past the datagram end
	IntegrityErrors atomic.Uint64
	Bytes           atomic.Uint64 // captured bytes
}

// Device contains the counters of one receive queue and its datagram stream.
type Device struct {
	ID   int
	Name string

	Datagrams            atomic.Uint64
	LastSequence         atomic.Uint32
	MagicErrors          atomic.Uint64
	SequenceErrors       atomic.Uint64
	FrameCountMismatches atomic.Uint64
	UnknownPorts         atomic.Uint64
	Runts                atomic.Uint64
	QueueErrors          atomic.Uint64

	Ports []Port
}

// NewDevice creates counters for a device observing ports TAP ports.
func NewDevice(id int, name string, ports int) *Device {
	return &Device{
		ID:    id,
		Name:  name,
		Ports: make([]Port, ports),
	}
}

// Port returns the counters of port n, or nil when n is out of range.
func (d *Device) Port(n uint8) *Port {
	if int(n) >= len(d.Ports) {
		return nil
	}
	return &d.Ports[n]
}

// PortSnapshot is a point-in-time copy of Port.
type PortSnapshot struct {
	Port            int    `json:"port" yaml:"port"`
	Subframes       uint64 `json:"subframes" yaml:"subframes"`
	Truncated       uint64 `json:"truncated" yaml:"truncated"`
	Dropped         uint64 `json:"dropped" yaml:"dropped"`
	IntegrityErrors uint64 `json:"integrity_errors" yaml:"integrity_errors"`
	Bytes           uint64 `json:"bytes" yaml:"bytes"`
}

// DeviceSnapshot is a point-in-time copy of Device.
type DeviceSnapshot struct {
	ID                   int            `json:"id" yaml:"id"`
	Name                 string         `json:"name" yaml:"name"`
	Datagrams            uint64         `json:"datagrams" yaml:"datagrams"`
	LastSequence         uint32         `json:"last_sequence" yaml:"last_sequence"`
	MagicErrors          uint64         `json:"magic_errors" yaml:"magic_errors"`
	SequenceErrors       uint64         `json:"sequence_errors" yaml:"sequence_errors"`
	FrameCountMismatches uint64         `json:"frame_count_mismatches" yaml:"frame_count_mismatches"`
	UnknownPorts         uint64         `json:"unknown_ports" yaml:"unknown_ports"`
	Runts                uint64         `json:"runts" yaml:"runts"`
	QueueErrors          uint64         `json:"queue_errors" yaml:"queue_errors"`
	Ports                []PortSnapshot `json:"ports" yaml:"ports"`
}

// Snapshot copies the current counter values.
func (d *Device) Snapshot() DeviceSnapshot {
	s := DeviceSnapshot{
		ID:                   d.ID,
		Name:                 d.Name,
		Datagrams:            d.Datagrams.Load(),
		LastSequence:         d.LastSequence.Load(),
		MagicErrors:          d.MagicErrors.Load(),
		SequenceErrors:       d.SequenceErrors.Load(),
		FrameCountMismatches: d.FrameCountMismatches.Load(),
		UnknownPorts:         d.UnknownPorts.Load(),
		Runts:                d.Runts.Load(),
		QueueErrors:          d.QueueErrors.Load(),
		Ports:                make([]PortSnapshot, len(d.Ports)),
	}
	for i := range d.Ports {
		p := &d.Ports[i]
		s.Ports[i] = PortSnapshot{
			Port:            i,
			Subframes:       p.Subframes.Load(),
			Truncated:       p.Truncated.Load(),
			Dropped:         p.Dropped.Load(),
			IntegrityErrors: p.IntegrityErrors.Load(),
			Bytes:           p.Bytes.Load(),
		}
	}
	return s
}

// SumPorts adds up port counters across devices. The result has ports entries.
func SumPorts(devices []DeviceSnapshot, ports int) []PortSnapshot {
	out := make([]PortSnapshot, ports)
	for i := range out {
		out[i].Port = i
	}
	for _, d := range devices {
		for _, p := range d.Ports {
			if p.Port >= ports {
				continue
			}
			o := &out[p.Port]
			o.Subframes += p.Subframes
			o.Truncated += p.Truncated
			o.Dropped += p.Dropped
			o.IntegrityErrors += p.IntegrityErrors
			o.Bytes += p.Bytes
		}
	}
	return out
}

// Totals is the device-level sum across all devices.
type Totals struct {
	Datagrams            uint64 `json:"datagrams" yaml:"datagrams"`
	MagicErrors          uint64 `json:"magic_errors" yaml:"magic_errors"`
	SequenceErrors       uint64 `json:"sequence_errors" yaml:"sequence_errors"`
	FrameCountMismatches uint64 `json:"frame_count_mismatches" yaml:"frame_count_mismatches"`
	UnknownPorts         uint64 `json:"unknown_ports" yaml:"unknown_ports"`
	Runts                uint64 `json:"runts" yaml:"runts"`
	QueueErrors          uint64 `json:"queue_errors" yaml:"queue_errors"`
}

// SumDevices adds up device-level counters.
func SumDevices(devices []DeviceSnapshot) Totals {
	var t Totals
	for _, d := range devices {
		t.Datagrams += d.Datagrams
		t.MagicErrors += d.MagicErrors
		t.SequenceErrors += d.SequenceErrors
		t.FrameCountMismatches += d.FrameCountMismatches
		t.UnknownPorts += d.UnknownPorts
		t.Runts += d.Runts
		t.QueueErrors += d.QueueErrors
	}
	return t
}
