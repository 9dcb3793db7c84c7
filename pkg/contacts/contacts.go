// Package contacts resolves phone numbers and email addresses from the
// Messages archive to display names using the macOS AddressBook databases.
package contacts

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"retrospect/pkg/logger"
)

const addressBookFile = "AddressBook-v22.abcddb"

// Resolver maps normalized handles to contact names. The directory scan
// runs once, on first use, and the resulting cache is read-only for the
// life of the process. A missing or unreadable AddressBook is not an
// error; unresolved handles simply pass through unchanged.
type Resolver struct {
	dir   string
	once  sync.Once
	names map[string]string
}

// New returns a Resolver that will scan the given AddressBook directory
// (the one containing AddressBook-v22.abcddb and Sources/) on first use.
func New(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// NewStatic returns a Resolver pre-populated with the given entries and no
// directory scan. Keys must already be normalized (last-ten-digit phones,
// lowercase emails).
func NewStatic(entries map[string]string) *Resolver {
	r := &Resolver{names: make(map[string]string, len(entries))}
	for k, v := range entries {
		r.names[k] = v
	}
	r.once.Do(func() {})
	return r
}

func (r *Resolver) ensureLoaded() {
	r.once.Do(r.load)
}

func (r *Resolver) load() {
	r.names = make(map[string]string)
	if r.dir == "" {
		return
	}

	paths, err := filepath.Glob(filepath.Join(r.dir, "Sources", "*", addressBookFile))
	if err != nil {
		logger.Warn("contacts_glob_failed", "dir", r.dir, "error", err)
		paths = nil
	}
	main := filepath.Join(r.dir, addressBookFile)
	if _, err := os.Stat(main); err == nil && !lo.Contains(paths, main) {
		paths = append(paths, main)
	}

	for _, p := range paths {
		r.loadDB(p)
	}
	logger.Info("contacts_loaded", "databases", len(paths), "entries", len(r.names))
}

func (r *Resolver) loadDB(path string) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		logger.Debug("contacts_db_skipped", "path", path, "error", err)
		return
	}
	defer db.Close()

	phoneRows, err := db.Query(`
		SELECT r.ZFIRSTNAME, r.ZLASTNAME, p.ZFULLNUMBER
		FROM ZABCDRECORD r
		JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
		WHERE p.ZFULLNUMBER IS NOT NULL`)
	if err != nil {
		logger.Debug("contacts_phone_query_failed", "path", path, "error", err)
	} else {
		func() {
			defer phoneRows.Close()
			for phoneRows.Next() {
				var first, last, number sql.NullString
				if err := phoneRows.Scan(&first, &last, &number); err != nil {
					continue
				}
				name := recordName(first, last)
				if name == "" || number.String == "" {
					continue
				}
				if normalized := NormalizePhone(number.String); normalized != "" {
					r.names[normalized] = name
				}
			}
		}()
	}

	emailRows, err := db.Query(`
		SELECT r.ZFIRSTNAME, r.ZLASTNAME, e.ZADDRESS
		FROM ZABCDRECORD r
		JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
		WHERE e.ZADDRESS IS NOT NULL`)
	if err != nil {
		logger.Debug("contacts_email_query_failed", "path", path, "error", err)
		return
	}
	defer emailRows.Close()
	for emailRows.Next() {
		var first, last, addr sql.NullString
		if err := emailRows.Scan(&first, &last, &addr); err != nil {
			continue
		}
		name := recordName(first, last)
		if name == "" || addr.String == "" {
			continue
		}
		r.names[strings.ToLower(addr.String)] = name
	}
}

func recordName(first, last sql.NullString) string {
	return strings.TrimSpace(strings.TrimSpace(first.String) + " " + strings.TrimSpace(last.String))
}

// Size reports how many handle entries the cache holds, loading it if
// needed.
func (r *Resolver) Size() int {
	r.ensureLoaded()
	return len(r.names)
}

// ResolveName looks up a contact name for a phone number or email handle.
// Unresolved handles are returned unchanged; this never fails.
func (r *Resolver) ResolveName(handle string) string {
	if handle == "" {
		return handle
	}
	r.ensureLoaded()

	if strings.Contains(handle, "@") {
		if name, ok := r.names[strings.ToLower(handle)]; ok {
			return name
		}
		return handle
	}
	if normalized := NormalizePhone(handle); normalized != "" {
		if name, ok := r.names[normalized]; ok {
			return name
		}
	}
	return handle
}

// ResolveConversationName picks a human-readable title for a conversation.
// A stored display name wins unless it looks like a raw identifier; group
// chats fall back to the first four member names.
func (r *Resolver) ResolveConversationName(displayName string, handles []string, isGroup bool) string {
	if displayName != "" && !looksLikeRawIdentifier(displayName) {
		return displayName
	}

	if len(handles) == 0 {
		if displayName != "" {
			if resolved := r.ResolveName(displayName); resolved != displayName {
				return resolved
			}
			return displayName
		}
		return "Unknown"
	}

	names := lo.Map(handles, func(h string, _ int) string { return r.ResolveName(h) })
	if isGroup {
		limit := len(names)
		if limit > 4 {
			limit = 4
		}
		joined := strings.Join(names[:limit], ", ")
		if len(names) > 4 {
			joined += "..."
		}
		return joined
	}
	return names[0]
}
