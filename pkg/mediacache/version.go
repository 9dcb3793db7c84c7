package mediacache

import (
	"bytes"
	"strconv"

	"github.com/cockroachdb/pebble"

	"retrospect/pkg/logger"
)

// formatVersion marks the on-disk cache layout. Bumping it makes existing
// caches rebuild lazily: everything stored here is derivable from the
// source attachments, so a wipe is always safe.
const formatVersion = 1

var formatKey = []byte("sys:format")

// ensureFormat checks the stored format version and sweeps all entries
// when it does not match the current one.
func (c *Cache) ensureFormat() error {
	v, closer, err := c.db.Get(formatKey)
	if err == nil {
		stored, perr := strconv.Atoi(string(v))
		_ = closer.Close()
		if perr == nil && stored == formatVersion {
			return nil
		}
		logger.Warn("mediacache_format_mismatch", "stored", string(v), "current", formatVersion)
		if err := c.sweepAll(); err != nil {
			return err
		}
	}
	return c.db.Set(formatKey, []byte(strconv.Itoa(formatVersion)), pebble.Sync)
}

// sweepAll deletes every img:/meta: entry; used by the format migration.
func (c *Cache) sweepAll() error {
	iter, err := c.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if bytes.HasPrefix(k, []byte(imgPrefix)) || bytes.HasPrefix(k, []byte(metaPrefix)) {
			keys = append(keys, append([]byte(nil), k...))
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.db.Delete(k, pebble.NoSync); err != nil {
			return err
		}
	}
	logger.Info("mediacache_swept", "entries", len(keys))
	return nil
}
