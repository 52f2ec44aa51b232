package capture

import (
	"time"
)

// Anomaly is a kind of warning raised by a capture worker.
type Anomaly uint8

const (
	AnomalyRunt Anomaly = iota
	AnomalyMagic
	AnomalySequence
	AnomalyFrameCount
	AnomalyIntegrity
	AnomalyUnknownPort
	AnomalyOverrun
	AnomalyQueue
	anomalyKinds
)

var anomalyNames = [...]string{
	AnomalyRunt:        "runt",
	AnomalyMagic:       "magic",
	AnomalySequence:    "sequence",
	AnomalyFrameCount:  "frame_count",
	AnomalyIntegrity:   "integrity",
	AnomalyUnknownPort: "unknown_port",
	AnomalyOverrun:     "overrun",
	AnomalyQueue:       "queue",
}

func (a Anomaly) String() string {
	if a < anomalyKinds {
		return anomalyNames[a]
	}
	return "unknown"
}

// WarnLimiter caps the number of warnings logged per anomaly kind in a
// fixed window. Warnings over the cap are counted and the count is handed
// back with the first allowed warning of the same kind in a later window.
//
// A WarnLimiter belongs to one worker and is not safe for concurrent use.
type WarnLimiter struct {
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow uint64

	current    [anomalyKinds]uint64
	suppressed [anomalyKinds]uint64
	carried    [anomalyKinds]uint64
}

// WarnLimiterConfig configures a WarnLimiter.
type WarnLimiterConfig struct {
	MaxPerWindow int           // zero or less disables limiting
	Window       time.Duration // default 10s
}

// NewWarnLimiter creates a limiter. Returns nil when limiting is disabled;
// a nil limiter allows everything.
func NewWarnLimiter(cfg WarnLimiterConfig) *WarnLimiter {
	if cfg.MaxPerWindow <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &WarnLimiter{
		windowSize:   cfg.Window,
		maxPerWindow: uint64(cfg.MaxPerWindow),
	}
}

// Allow reports whether a warning of kind may be logged at now. When it
// may, the second result is the number of warnings of that kind suppressed
// in earlier windows and not yet reported.
func (l *WarnLimiter) Allow(kind Anomaly, now time.Time) (bool, uint64) {
	if l == nil || kind >= anomalyKinds {
		return true, 0
	}

	if now.Sub(l.windowStart) >= l.windowSize {
		for k := range l.current {
			l.carried[k] += l.suppressed[k]
			l.suppressed[k] = 0
			l.current[k] = 0
		}
		l.windowStart = now
	}

	l.current[kind]++
	if l.current[kind] > l.maxPerWindow {
		l.suppressed[kind]++
		return false, 0
	}

	carried := l.carried[kind]
	l.carried[kind] = 0
	return true, carried
}

// Suppressed returns the warnings of kind not logged and not yet reported.
func (l *WarnLimiter) Suppressed(kind Anomaly) uint64 {
	if l == nil || kind >= anomalyKinds {
		return 0
	}
	return l.suppressed[kind] + l.carried[kind]
}
