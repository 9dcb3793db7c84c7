// Package sensor samples host resources so the media cache can stop
// writing under disk pressure instead of filling the volume that also
// holds the source archive.
package sensor

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Snapshot contains a lightweight view of system resources. Fields are
// best-effort and may be zero on unsupported platforms.
type Snapshot struct {
	Timestamp time.Time

	// Memory in bytes (process view)
	MemTotal uint64
	MemUsed  uint64

	// Disk free/total in bytes for the watched path's filesystem
	DiskTotal uint64
	DiskFree  uint64
}

// Sensor polls the filesystem holding path and exposes a current
// Snapshot.
type Sensor struct {
	mu       sync.RWMutex
	snap     Snapshot
	path     string
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSensor creates a sensor that samples the filesystem containing path
// every interval.
func NewSensor(path string, interval time.Duration) *Sensor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Sensor{path: path, interval: interval}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start begins background polling. Call Stop to terminate.
func (s *Sensor) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		// warm initial sample
		s.sample()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop stops background polling and waits for the worker to exit.
func (s *Sensor) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the most recent snapshot (fast, copy).
func (s *Sensor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// sample collects best-effort metrics and updates the current snapshot.
func (s *Sensor) sample() {
	snap := Snapshot{Timestamp: time.Now()}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	snap.MemTotal = memStats.Sys
	snap.MemUsed = memStats.Alloc

	if total, free, err := diskUsage(s.path); err == nil {
		snap.DiskTotal = total
		snap.DiskFree = free
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}
