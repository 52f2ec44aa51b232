// Package hwstats reads the TAP appliance's hardware counters from its
// register window and reconciles them against software counts.
package hwstats

import (
	"encoding/binary"
	"fmt"
	"time"

	"firestige.xyz/dgcap/internal/core"
)

// GeneratorCounters is the DGGEN register group.
type GeneratorCounters struct {
	SeqNum         uint32 `json:"seq_num" yaml:"seq_num"`
	SizeSettings   uint32 `json:"size_settings" yaml:"size_settings"`   // 13 bits
	TimerSettings  uint32 `json:"timer_settings" yaml:"timer_settings"` // 17 bits
	InSubframeCnt  uint32 `json:"in_subframe_cnt" yaml:"in_subframe_cnt"`
	OutSubframeCnt uint32 `json:"out_subframe_cnt" yaml:"out_subframe_cnt"`
}

// PortCounters is the register group of one TAP port.
type PortCounters struct {
	BitField         uint32 `json:"bit_field" yaml:"bit_field"`
	TotalSubframes   uint32 `json:"total_subframes" yaml:"total_subframes"`
	BufferFullTrunc  uint32 `json:"buffer_full_trunc" yaml:"buffer_full_trunc"`
	PacketSizeTrunc  uint32 `json:"packet_size_trunc" yaml:"packet_size_trunc"`
	BufferFullDrop   uint32 `json:"buffer_full_drop" yaml:"buffer_full_drop"`
	OutPacketCount   uint32 `json:"out_packet_count" yaml:"out_packet_count"`
	TruncUserRequest uint32 `json:"trunc_user_req" yaml:"trunc_user_req"`
	PhyRxErrors      uint32 `json:"phy_rxerr" yaml:"phy_rxerr"`
	DropUserRequest  uint32 `json:"drop_user_req" yaml:"drop_user_req"`
}

const (
	generatorRegisters = 5
	portRegisters      = 9
	registerWidth      = 4
)

// Snapshot is one read of every hardware counter.
type Snapshot struct {
	Time      time.Time         `json:"time" yaml:"time"`
	Generator GeneratorCounters `json:"generator" yaml:"generator"`
	Ports     []PortCounters    `json:"ports" yaml:"ports"`
}

// Reader takes hardware snapshots.
type Reader interface {
	ReadSnapshot() (Snapshot, error)
}

// Layout locates the register groups inside the device window.
type Layout struct {
	Device          string
	MapSize         int
	MapOffset       int64
	GeneratorOffset int
	PortOffset      int
	PortStride      int
	Ports           int
}

// DefaultLayout is the register map of the current TAP bitstream.
func DefaultLayout() Layout {
	return Layout{
		Device:          "/dev/uio0",
		MapSize:         4 << 20,
		MapOffset:       4096,
		GeneratorOffset: 12288,
		PortOffset:      16384,
		PortStride:      4096,
		Ports:           4,
	}
}

// Validate checks that every register group fits in the mapped window.
func (l Layout) Validate() error {
	if l.MapSize <= 0 || l.Ports < 0 || l.PortStride < 0 {
		return fmt.Errorf("%w: hardware layout sizes must be positive", core.ErrConfigInvalid)
	}
	if l.GeneratorOffset < 0 || l.GeneratorOffset%registerWidth != 0 ||
		l.PortOffset < 0 || l.PortOffset%registerWidth != 0 || l.PortStride%registerWidth != 0 {
		return fmt.Errorf("%w: hardware register offsets must be non-negative and 32-bit aligned", core.ErrConfigInvalid)
	}
	if l.GeneratorOffset+generatorRegisters*registerWidth > l.MapSize {
		return fmt.Errorf("%w: generator registers at %d exceed map size %d", core.ErrConfigInvalid, l.GeneratorOffset, l.MapSize)
	}
	if l.Ports > 0 {
		last := l.PortOffset + (l.Ports-1)*l.PortStride + portRegisters*registerWidth
		if last > l.MapSize {
			return fmt.Errorf("%w: port registers end at %d beyond map size %d", core.ErrConfigInvalid, last, l.MapSize)
		}
	}
	return nil
}

// load reads the 32-bit register at byte offset off of the window.
type load func(off int) uint32

func (l Layout) read(ld load, at time.Time) Snapshot {
	g := l.GeneratorOffset
	s := Snapshot{
		Time: at,
		Generator: GeneratorCounters{
			SeqNum:         ld(g),
			SizeSettings:   ld(g + 4),
			TimerSettings:  ld(g + 8),
			InSubframeCnt:  ld(g + 12),
			OutSubframeCnt: ld(g + 16),
		},
		Ports: make([]PortCounters, l.Ports),
	}
	for i := range s.Ports {
		p := l.PortOffset + i*l.PortStride
		s.Ports[i] = PortCounters{
			BitField:         ld(p),
			TotalSubframes:   ld(p + 4),
			BufferFullTrunc:  ld(p + 8),
			PacketSizeTrunc:  ld(p + 12),
			BufferFullDrop:   ld(p + 16),
			OutPacketCount:   ld(p + 20),
			TruncUserRequest: ld(p + 24),
			PhyRxErrors:      ld(p + 28),
			DropUserRequest:  ld(p + 32),
		}
	}
	return s
}

// DecodeWindow decodes a copy of the register window. Registers are in
// host (little-endian) order.
func DecodeWindow(window []byte, l Layout) (Snapshot, error) {
	if l.MapSize > len(window) {
		l.MapSize = len(window)
	}
	if err := l.Validate(); err != nil {
		return Snapshot{}, err
	}
	ld := func(off int) uint32 {
		return binary.LittleEndian.Uint32(window[off:])
	}
	return l.read(ld, time.Now()), nil
}
