package mediacache

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetDelete(t *testing.T) {
	c := openTestCache(t)

	data := []byte("jpeg bytes")
	if err := c.Put(42, data, "convert"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, meta, ok := c.Get(42)
	if !ok {
		t.Fatal("Get missed a stored entry")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
	if meta.Size != int64(len(data)) || meta.Source != "convert" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.CreatedAt().IsZero() {
		t.Fatal("meta has no creation time")
	}

	if err := c.Delete(42); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, ok := c.Get(42); ok {
		t.Fatal("Get hit after Delete")
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)
	if _, _, ok := c.Get(7); ok {
		t.Fatal("Get hit on empty cache")
	}
}

func TestEntriesAndStats(t *testing.T) {
	c := openTestCache(t)
	for id := int64(1); id <= 3; id++ {
		if err := c.Put(id, make([]byte, 10), "prewarm"); err != nil {
			t.Fatalf("Put %d: %v", id, err)
		}
	}

	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries returned %d, want 3", len(entries))
	}
	seen := map[int64]bool{}
	for _, e := range entries {
		seen[e.ID] = true
		if e.Meta.Size != 10 {
			t.Fatalf("entry %d size = %d, want 10", e.ID, e.Meta.Size)
		}
	}
	for id := int64(1); id <= 3; id++ {
		if !seen[id] {
			t.Fatalf("entry %d missing from Entries", id)
		}
	}

	st := c.Stats()
	if st.Entries != 3 || st.Bytes != 30 {
		t.Fatalf("Stats = %+v, want 3 entries / 30 bytes", st)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := c.Put(9, []byte("persisted"), "convert"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer c2.Close()
	if data, _, ok := c2.Get(9); !ok || string(data) != "persisted" {
		t.Fatalf("entry lost across reopen (ok=%v data=%q)", ok, data)
	}
}
