package utils

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"retrospect/pkg/api"
	"retrospect/pkg/archive"
	"retrospect/pkg/auth"
	"retrospect/pkg/contacts"
	"retrospect/pkg/convert"
	"retrospect/pkg/logger"
	"retrospect/pkg/mediacache"
	"retrospect/pkg/sensor"
)

// FixtureMonth and FixtureDay anchor every fixture message so tests are
// independent of the wall clock.
const (
	FixtureMonth = 8
	FixtureDay   = 21
)

// LocalServer routes requests directly to the handler tree without real
// network listeners. It replaces the global http.DefaultClient Transport
// while active and restores it on Close.
type LocalServer struct {
	URL  string
	prev *http.Client
}

func (s *LocalServer) Close() {
	if s.prev != nil {
		http.DefaultClient = s.prev
	}
}

type handlerRoundTripper struct {
	handler http.Handler
}

func (h *handlerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr.Result(), nil
}

func appleNanos(t time.Time) int64 {
	return (t.Unix() - 978307200) * 1e9
}

// typedBlob wraps text in the minimal typedstream shape the extractor
// accepts.
func typedBlob(text string) []byte {
	var b bytes.Buffer
	b.WriteString("NSString")
	b.Write([]byte{0x01, 0x2b, byte(len(text))})
	b.WriteString(text)
	return b.Bytes()
}

const fixtureSchema = `
CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, guid TEXT, chat_identifier TEXT, display_name TEXT, style INTEGER);
CREATE TABLE message (ROWID INTEGER PRIMARY KEY, guid TEXT, text TEXT, attributedBody BLOB,
	is_from_me INTEGER DEFAULT 0, date INTEGER, date_read INTEGER, handle_id INTEGER,
	associated_message_guid TEXT, associated_message_type INTEGER DEFAULT 0);
CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER);
CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY, filename TEXT, mime_type TEXT, transfer_name TEXT);
CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);
`

// WriteArchiveFixture writes a small chat.db with one direct chat and one
// group chat active on FixtureMonth/FixtureDay across several years.
// attachmentFile, when non-empty, becomes the stored path of attachment 1
// so handler tests can serve real bytes; attachment 2 always points at a
// missing file.
func WriteArchiveFixture(t *testing.T, dbPath, attachmentFile string) {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	day := func(year, hour int) int64 {
		return appleNanos(time.Date(year, FixtureMonth, FixtureDay, hour, 0, 0, 0, time.Local))
	}
	exec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("exec %s: %v", q, err)
		}
	}

	exec(`INSERT INTO chat VALUES (1, 'CHAT-GUID-1', '+14155552671', '', 45)`)
	exec(`INSERT INTO chat VALUES (2, 'CHAT-GUID-2', 'chat884422', '', 43)`)

	exec(`INSERT INTO handle VALUES (1, '+14155552671')`)
	exec(`INSERT INTO handle VALUES (2, 'one@sample.net')`)
	exec(`INSERT INTO handle VALUES (3, 'two@sample.net')`)
	exec(`INSERT INTO chat_handle_join VALUES (1, 1), (2, 1), (2, 2), (2, 3)`)

	// chat 1: 2019 exchange with a tapback, 2021 blob-only message
	exec(`INSERT INTO message (ROWID, guid, text, date, handle_id) VALUES
		(1, 'MSG-2019-1', 'Happy birthday!', ?, 1)`, day(2019, 12))
	exec(`INSERT INTO message (ROWID, guid, text, is_from_me, date, date_read) VALUES
		(2, 'MSG-2019-2', 'Thanks!', 1, ?, ?)`, day(2019, 13), day(2019, 14))
	exec(`INSERT INTO message (ROWID, guid, is_from_me, date, associated_message_guid, associated_message_type) VALUES
		(3, 'TB-1', 1, ?, 'p:0/MSG-2019-1', 2001)`, day(2019, 15))
	exec(`INSERT INTO message (ROWID, guid, text, attributedBody, date, handle_id) VALUES
		(4, 'MSG-2021-1', NULL, ?, ?, 1)`, typedBlob("From the archive"), day(2021, 9))
	exec(`INSERT INTO chat_message_join VALUES (1, 1), (1, 2), (1, 3), (1, 4)`)

	// chat 2: one 2022 group message carrying the attachments
	exec(`INSERT INTO message (ROWID, guid, text, date, handle_id) VALUES
		(5, 'G-1', 'photo from today', ?, 2)`, day(2022, 10))
	exec(`INSERT INTO chat_message_join VALUES (2, 5)`)

	exec(`INSERT INTO attachment VALUES (1, ?, 'image/png', 'photo.png')`, attachmentFile)
	exec(`INSERT INTO attachment VALUES (2, '/nonexistent/gone.jpg', 'image/jpeg', 'gone.jpg')`)
	exec(`INSERT INTO message_attachment_join VALUES (5, 1), (5, 2)`)
}

// ServerEnv bundles the opened components behind a LocalServer so tests
// can reach into them.
type ServerEnv struct {
	Archive *archive.Store
	Cache   *mediacache.Cache
}

// SetupServer builds a fixture archive, opens the full handler tree with
// an open gateway and swaps http.DefaultClient to route to it.
func SetupServer(t *testing.T, attachmentFile string) (*LocalServer, *ServerEnv) {
	return setup(t, attachmentFile, auth.SecConfig{})
}

// SetupServerWithSec is SetupServer with an explicit gateway config, for
// auth and rate-limit tests.
func SetupServerWithSec(t *testing.T, attachmentFile string, sec auth.SecConfig) (*LocalServer, *ServerEnv) {
	return setup(t, attachmentFile, sec)
}

func setup(t *testing.T, attachmentFile string, sec auth.SecConfig) (*LocalServer, *ServerEnv) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger.Init failed: %v", err)
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chat.db")
	WriteArchiveFixture(t, dbPath, attachmentFile)

	arch, err := archive.Open(dbPath)
	if err != nil {
		t.Fatalf("archive.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = arch.Close() })

	cache, err := mediacache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("mediacache.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	resolver := contacts.NewStatic(map[string]string{
		"4155552671":     "Alex Chen",
		"one@sample.net": "Sam Rivera",
	})

	sen := sensor.NewSensor(dir, time.Minute)
	router := api.Router(api.Deps{
		Archive:   arch,
		Contacts:  resolver,
		Cache:     cache,
		Converter: convert.New(dir),
		Gate:      sensor.NewGate(sen, 0),
		Version:   "test",
	})
	handler := auth.Gateway(sec)(router)

	prev := http.DefaultClient
	http.DefaultClient = &http.Client{Transport: &handlerRoundTripper{handler: handler}}
	return &LocalServer{URL: "http://localtest", prev: prev}, &ServerEnv{Archive: arch, Cache: cache}
}
