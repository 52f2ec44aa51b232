//go:build linux

package hwstats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"firestige.xyz/dgcap/internal/core"
)

// UIOReader maps the device's register window for each snapshot and
// unmaps it afterwards.
type UIOReader struct {
	layout Layout
}

// NewUIOReader validates layout and returns a reader for layout.Device.
func NewUIOReader(layout Layout) (*UIOReader, error) {
	if layout.Device == "" {
		return nil, fmt.Errorf("%w: hardware device path is empty", core.ErrConfigInvalid)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &UIOReader{layout: layout}, nil
}

// ReadSnapshot reads every register group with 32-bit loads.
func (r *UIOReader) ReadSnapshot() (Snapshot, error) {
	l := r.layout

	fd, err := unix.Open(l.Device, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: open %s: %v", core.ErrSnapshotUnavailable, l.Device, err)
	}
	mem, err := unix.Mmap(fd, l.MapOffset, l.MapSize, unix.PROT_READ, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: map %s: %v", core.ErrSnapshotUnavailable, l.Device, err)
	}

	ld := func(off int) uint32 {
		return atomic.LoadUint32((*uint32)(unsafe.Pointer(&mem[off])))
	}
	s := l.read(ld, time.Now())

	if err := unix.Munmap(mem); err != nil {
		slog.Warn("failed to unmap device registers", "device", l.Device, "error", err)
	}
	return s, nil
}

var _ Reader = (*UIOReader)(nil)
