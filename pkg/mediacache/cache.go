// Package mediacache is a pebble-backed byte cache for converted
// attachment images. Entries pair the converted bytes with a small JSON
// meta envelope so the janitor can prune by age and size without reading
// values.
package mediacache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"retrospect/pkg/logger"
)

// Key layout: img:<padded id> holds the converted bytes, meta:<padded id>
// the envelope. Padding keeps iteration order stable.
const (
	imgPrefix  = "img:"
	metaPrefix = "meta:"
)

// Meta describes one cached conversion. Created is unix nanoseconds so
// the janitor can order entries written within the same second.
type Meta struct {
	Created int64  `json:"created"`
	Size    int64  `json:"size"`
	Source  string `json:"source"`
}

// CreatedAt returns the creation time of the entry.
func (m Meta) CreatedAt() time.Time { return time.Unix(0, m.Created) }

// Entry is one cache entry as seen by the janitor.
type Entry struct {
	ID   int64
	Meta Meta
}

// Stats is a compact cache summary.
type Stats struct {
	Entries int
	Bytes   int64
}

// Cache wraps the pebble handle.
type Cache struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the cache at the given path and runs the format
// migration sweep if the on-disk layout predates the current one.
func Open(path string) (*Cache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("mediacache_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open media cache: %w", err)
	}
	c := &Cache{db: db, path: path}
	if err := c.ensureFormat(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("mediacache_opened", "path", path)
	return c, nil
}

// Close closes the underlying pebble handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Ready reports whether the cache is open.
func (c *Cache) Ready() bool {
	return c != nil && c.db != nil
}

// Path returns the cache directory.
func (c *Cache) Path() string { return c.path }

func imgKey(id int64) []byte  { return []byte(fmt.Sprintf("%s%020d", imgPrefix, id)) }
func metaKey(id int64) []byte { return []byte(fmt.Sprintf("%s%020d", metaPrefix, id)) }

// Get returns the cached bytes and meta for an attachment id.
func (c *Cache) Get(id int64) ([]byte, Meta, bool) {
	if c.db == nil {
		return nil, Meta{}, false
	}
	v, closer, err := c.db.Get(imgKey(id))
	if err != nil {
		return nil, Meta{}, false
	}
	data := append([]byte(nil), v...)
	_ = closer.Close()

	var meta Meta
	if mv, mcloser, merr := c.db.Get(metaKey(id)); merr == nil {
		_ = json.Unmarshal(mv, &meta)
		_ = mcloser.Close()
	}
	return data, meta, true
}

// Put stores converted bytes for an attachment id together with its meta
// envelope.
func (c *Cache) Put(id int64, data []byte, source string) error {
	if c.db == nil {
		return fmt.Errorf("media cache not open")
	}
	meta := Meta{Created: time.Now().UnixNano(), Size: int64(len(data)), Source: source}
	mb, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}
	if err := c.db.Set(imgKey(id), data, pebble.Sync); err != nil {
		logger.Error("mediacache_put_failed", "attachment", id, "error", err)
		return err
	}
	if err := c.db.Set(metaKey(id), mb, pebble.Sync); err != nil {
		logger.Error("mediacache_meta_put_failed", "attachment", id, "error", err)
		return err
	}
	logger.Debug("mediacache_stored", "attachment", id, "bytes", len(data))
	return nil
}

// Delete removes an entry and its meta.
func (c *Cache) Delete(id int64) error {
	if c.db == nil {
		return fmt.Errorf("media cache not open")
	}
	if err := c.db.Delete(imgKey(id), pebble.Sync); err != nil {
		return err
	}
	return c.db.Delete(metaKey(id), pebble.Sync)
}

// Entries lists all cached entries with their meta envelopes.
func (c *Cache) Entries() []Entry {
	if c.db == nil {
		return nil
	}
	iter, err := c.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil
	}
	defer iter.Close()

	prefix := []byte(metaPrefix)
	var out []Entry
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var id int64
		if _, err := fmt.Sscanf(string(iter.Key()[len(prefix):]), "%d", &id); err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			continue
		}
		out = append(out, Entry{ID: id, Meta: meta})
	}
	return out
}

// Stats summarizes entry count and stored bytes.
func (c *Cache) Stats() Stats {
	var s Stats
	for _, e := range c.Entries() {
		s.Entries++
		s.Bytes += e.Meta.Size
	}
	return s
}
