// Package archive provides read-only access to an Apple Messages chat.db.
// Every query degrades on failure: a broken sub-query logs and contributes
// an empty result instead of failing the request. The archive is never
// written to.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports that a requested row does not exist in the archive.
// It is the only error callers are expected to branch on.
var ErrNotFound = errors.New("not found")

// Store wraps the chat.db handle. The underlying pool is opened in
// read-only mode so a live database being written by Messages stays safe
// to query.
type Store struct {
	db   *sql.DB
	path string
}

// Open validates that the archive exists and opens it read-only.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("archive not readable: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ready reports whether the archive answers queries.
func (s *Store) Ready() bool {
	if s == nil || s.db == nil {
		return false
	}
	return s.db.Ping() == nil
}

// Path returns the chat.db location this store was opened from.
func (s *Store) Path() string {
	return s.path
}

// sanitizeText strips the stray control bytes the archive stores inside
// message text and repairs invalid UTF-8 so the value survives JSON
// encoding.
func sanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0x00 || r == 0x01 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncateRunes caps s at n runes without splitting a multi-byte sequence.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
