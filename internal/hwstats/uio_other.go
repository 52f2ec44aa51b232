//go:build !linux

package hwstats

import (
	"fmt"

	"firestige.xyz/dgcap/internal/core"
)

// UIOReader is unavailable outside Linux.
type UIOReader struct {
	layout Layout
}

// NewUIOReader returns a reader whose snapshots always fail.
func NewUIOReader(layout Layout) (*UIOReader, error) {
	return &UIOReader{layout: layout}, nil
}

func (r *UIOReader) ReadSnapshot() (Snapshot, error) {
	return Snapshot{}, fmt.Errorf("%w: %s: %w", core.ErrSnapshotUnavailable, r.layout.Device, core.ErrUnsupported)
}

var _ Reader = (*UIOReader)(nil)
