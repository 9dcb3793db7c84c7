package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"retrospect/pkg/config"
	"retrospect/pkg/mediacache"
)

func openCache(t *testing.T) *mediacache.Cache {
	t.Helper()
	c, err := mediacache.Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPruneOnceTTL(t *testing.T) {
	c := openCache(t)
	for i := int64(1); i <= 3; i++ {
		if err := c.Put(i, []byte("jpegdata"), "convert"); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	// TTL in the future: nothing expires
	j := New(c, config.CacheConfig{TTL: config.Duration(time.Hour)})
	if err := j.PruneOnce(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if st := c.Stats(); st.Entries != 3 {
		t.Fatalf("expected 3 entries, got %d", st.Entries)
	}

	// zero-duration TTL means everything already written is expired
	j = New(c, config.CacheConfig{TTL: config.Duration(time.Nanosecond)})
	time.Sleep(5 * time.Millisecond)
	if err := j.PruneOnce(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if st := c.Stats(); st.Entries != 0 {
		t.Fatalf("expected empty cache after TTL prune, got %d entries", st.Entries)
	}
}

func TestPruneOnceSizeEviction(t *testing.T) {
	c := openCache(t)
	payload := make([]byte, 100)
	for i := int64(1); i <= 5; i++ {
		if err := c.Put(i, payload, "convert"); err != nil {
			t.Fatalf("put: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct Created timestamps
	}

	j := New(c, config.CacheConfig{MaxSize: config.SizeBytes(250)})
	if err := j.PruneOnce(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if st := c.Stats(); st.Entries != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", st.Entries)
	}
	// oldest entries go first
	if _, _, ok := c.Get(1); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, _, ok := c.Get(5); !ok {
		t.Fatalf("expected newest entry retained")
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	c := openCache(t)
	j := New(c, config.CacheConfig{PruneCron: "not a cron"})
	if _, err := j.Start(context.Background()); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}
