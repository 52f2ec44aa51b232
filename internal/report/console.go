package report

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"
)

const clearScreen = "\033c"

// Console redraws a report on a writer at a fixed interval.
type Console struct {
	Out      io.Writer
	Interval time.Duration
	Format   string
	Clear    bool
	// Snapshot builds the report to draw.
	Snapshot func(now time.Time) Report
	// Publish, when set, receives every drawn report.
	Publish func(ctx context.Context, r Report)
}

// Run draws until ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Draw(ctx, now)
		}
	}
}

// Draw renders one report. The frame is assembled before writing so the
// screen is never left half drawn.
func (c *Console) Draw(ctx context.Context, now time.Time) {
	r := c.Snapshot(now)

	var buf bytes.Buffer
	if c.Clear && c.Format != FormatJSON {
		buf.WriteString(clearScreen)
	}
	if err := Write(&buf, c.Format, r); err != nil {
		slog.Warn("failed to render report", "error", err)
		return
	}
	if _, err := c.Out.Write(buf.Bytes()); err != nil {
		slog.Warn("failed to write report", "error", err)
	}

	if c.Publish != nil {
		c.Publish(ctx, r)
	}
}
