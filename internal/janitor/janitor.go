// Package janitor prunes the media cache on a cron schedule: entries
// older than the configured TTL are removed first, then the oldest
// remaining entries are evicted until the cache fits under its size
// cap.
package janitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adhocore/gronx"

	"retrospect/pkg/config"
	"retrospect/pkg/logger"
	"retrospect/pkg/mediacache"
)

// Janitor owns the prune schedule for a cache.
type Janitor struct {
	cache *mediacache.Cache
	ttl   time.Duration
	max   uint64
	cron  string
}

// New builds a janitor from cache config. Zero TTL disables age-based
// pruning; zero MaxSize disables size-based eviction.
func New(cache *mediacache.Cache, cfg config.CacheConfig) *Janitor {
	cron := cfg.PruneCron
	if cron == "" {
		cron = "0 3 * * *"
	}
	return &Janitor{
		cache: cache,
		ttl:   time.Duration(cfg.TTL),
		max:   uint64(cfg.MaxSize),
		cron:  cron,
	}
}

// Start launches the scheduler goroutine. Returns a cancel func, or an
// error if the cron expression is invalid.
func (j *Janitor) Start(ctx context.Context) (context.CancelFunc, error) {
	if !gronx.IsValid(j.cron) {
		logger.Error("janitor_invalid_cron", "cron", j.cron)
		return nil, fmt.Errorf("invalid prune cron expression: %s", j.cron)
	}

	logger.Info("janitor_enabled", "cron", j.cron, "ttl", j.ttl.String(), "max_size", j.max)
	ctx2, cancel := context.WithCancel(ctx)
	go j.runScheduler(ctx2)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until
// it, then runs a prune pass. Errors are logged and the loop continues.
func (j *Janitor) runScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(j.cron, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", j.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := j.PruneOnce(ctx); err != nil {
				logger.Error("janitor_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		}
	}
}

// PruneOnce runs a single prune pass: TTL expiry first, then
// oldest-first eviction down to the size cap.
func (j *Janitor) PruneOnce(ctx context.Context) error {
	start := time.Now()
	entries := j.cache.Entries()

	var expired, evicted int
	var remaining []mediacache.Entry
	var total uint64
	cutoff := time.Now().Add(-j.ttl)
	for _, e := range entries {
		if j.ttl > 0 && e.Meta.CreatedAt().Before(cutoff) {
			if err := j.cache.Delete(e.ID); err != nil {
				logger.Warn("janitor_delete_failed", "id", e.ID, "error", err)
				continue
			}
			expired++
			continue
		}
		remaining = append(remaining, e)
		total += uint64(e.Meta.Size)
	}

	if j.max > 0 && total > j.max {
		sort.Slice(remaining, func(a, b int) bool {
			return remaining[a].Meta.CreatedAt().Before(remaining[b].Meta.CreatedAt())
		})
		for _, e := range remaining {
			if total <= j.max {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := j.cache.Delete(e.ID); err != nil {
				logger.Warn("janitor_delete_failed", "id", e.ID, "error", err)
				continue
			}
			total -= uint64(e.Meta.Size)
			evicted++
		}
	}

	logger.Info("janitor_prune_done",
		"expired", expired,
		"evicted", evicted,
		"remaining_bytes", total,
		"took", time.Since(start).String())
	return nil
}
