package sensor

import (
	"sync"
	"time"

	"retrospect/pkg/logger"
)

type gateState int

const (
	gateOpen gateState = iota
	gateClosed
)

// Gate decides whether cache writes are allowed based on free disk
// space reported by a Sensor. It closes when free space drops below
// MinFree and reopens only after free space has stayed above
// MinFree+Hysteresis for RecoveryWindow, so a cache hovering at the
// threshold does not flap.
type Gate struct {
	sensor  *Sensor
	minFree uint64

	// Hysteresis is the extra free space required before reopening.
	Hysteresis uint64
	// RecoveryWindow is how long free space must stay healthy before
	// writes resume.
	RecoveryWindow time.Duration

	mu           sync.Mutex
	state        gateState
	healthySince time.Time
}

// NewGate returns a gate over s. minFree of zero disables the gate
// (writes are always allowed).
func NewGate(s *Sensor, minFree uint64) *Gate {
	return &Gate{
		sensor:         s,
		minFree:        minFree,
		Hysteresis:     minFree / 10,
		RecoveryWindow: 30 * time.Second,
	}
}

// AllowWrites reports whether the cache may accept new entries.
func (g *Gate) AllowWrites() bool {
	if g == nil || g.minFree == 0 {
		return true
	}
	snap := g.sensor.Snapshot()
	if snap.Timestamp.IsZero() || snap.DiskTotal == 0 {
		// no data yet; fail open
		return true
	}
	return g.evaluate(snap.DiskFree, time.Now())
}

func (g *Gate) evaluate(free uint64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case gateOpen:
		if free < g.minFree {
			g.state = gateClosed
			g.healthySince = time.Time{}
			logger.Warn("cache_writes_paused", "disk_free", free, "min_free", g.minFree)
			return false
		}
		return true
	default: // gateClosed
		if free >= g.minFree+g.Hysteresis {
			if g.healthySince.IsZero() {
				g.healthySince = now
			}
			if now.Sub(g.healthySince) >= g.RecoveryWindow {
				g.state = gateOpen
				g.healthySince = time.Time{}
				logger.Info("cache_writes_resumed", "disk_free", free)
				return true
			}
		} else {
			g.healthySince = time.Time{}
		}
		return false
	}
}
