package archive

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// appleNanos converts a time into the archive's native representation.
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

// writeFixture builds a two-conversation chat.db exercising tapbacks,
// retractions, blob-only text and attachments. All qualifying messages sit
// on Aug 21 of various years, at local noon to stay inside the day under
// any timezone.
func writeFixture(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	day := func(year, hour, min int) int64 {
		return appleNanos(time.Date(year, 8, 21, hour, min, 0, 0, time.Local))
	}

	exec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("exec %s: %v", q, err)
		}
	}

	exec(`INSERT INTO chat VALUES (1, 'CHAT-GUID-1', '+14155552671', '', 45)`)
	exec(`INSERT INTO chat VALUES (2, 'CHAT-GUID-2', 'chat884422', 'chat884422', 43)`)

	exec(`INSERT INTO handle VALUES (1, '+14155552671')`)
	exec(`INSERT INTO handle VALUES (2, 'one@sample.net')`)
	exec(`INSERT INTO handle VALUES (3, 'two@sample.net')`)
	exec(`INSERT INTO chat_handle_join VALUES (1, 1), (2, 2), (2, 3)`)

	// chat 1: two 2019 messages, a tapback, a retraction, one 2021 blob message
	exec(`INSERT INTO message (ROWID, guid, text, date, date_read, handle_id) VALUES
		(1, 'MSG-2019-1', 'Happy birthday!', ?, NULL, 1)`, day(2019, 12, 0))
	exec(`INSERT INTO message (ROWID, guid, text, is_from_me, date, date_read) VALUES
		(2, 'MSG-2019-2', 'Thanks!', 1, ?, ?)`, day(2019, 12, 5), day(2019, 12, 6))
	exec(`INSERT INTO message (ROWID, guid, is_from_me, date, associated_message_guid, associated_message_type) VALUES
		(3, 'TB-1', 1, ?, 'p:0/MSG-2019-1', 2001)`, day(2019, 12, 7))
	exec(`INSERT INTO message (ROWID, guid, date, handle_id, associated_message_guid, associated_message_type) VALUES
		(4, 'TB-GONE', ?, 1, 'p:0/MSG-2019-2', 3001)`, day(2019, 12, 8))
	exec(`INSERT INTO message (ROWID, guid, text, attributedBody, date, handle_id) VALUES
		(5, 'MSG-2021-1', NULL, ?, ?, 1)`, typedBlob("From the archive"), day(2021, 9, 0))
	// off-day message must never appear
	exec(`INSERT INTO message (ROWID, guid, text, date, handle_id) VALUES
		(6, 'MSG-OFFDAY', 'not today', ?, 1)`, appleNanos(time.Date(2020, 5, 1, 12, 0, 0, 0, time.Local)))
	exec(`INSERT INTO chat_message_join VALUES (1, 1), (1, 2), (1, 3), (1, 4), (1, 5), (1, 6)`)

	// chat 2: three 2022 group messages, most recent overall
	exec(`INSERT INTO message (ROWID, guid, text, date, handle_id) VALUES
		(7, 'G-1', 'morning all', ?, 2)`, day(2022, 9, 0))
	exec(`INSERT INTO message (ROWID, guid, text, date, handle_id) VALUES
		(8, 'G-2', 'meet at noon?', ?, 3)`, day(2022, 9, 5))
	exec(`INSERT INTO message (ROWID, guid, text, is_from_me, date) VALUES
		(9, 'G-3', 'works for me', 1, ?)`, day(2022, 9, 10))
	exec(`INSERT INTO chat_message_join VALUES (2, 7), (2, 8), (2, 9)`)

	exec(`INSERT INTO attachment VALUES (1, '~/Library/Messages/Attachments/ab/photo%20one.heic', 'image/heic', 'photo one.heic')`)
	exec(`INSERT INTO attachment (ROWID, filename, mime_type) VALUES (2, NULL, 'image/png')`)
	exec(`INSERT INTO message_attachment_join VALUES (5, 1)`)
}

func openFixture(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	writeFixture(t, path)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMissingArchive(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatalf("expected error for missing archive")
	}
}

func TestStoreReady(t *testing.T) {
	s := openFixture(t)
	if !s.Ready() {
		t.Fatalf("fixture store should be ready")
	}
	var nilStore *Store
	if nilStore.Ready() {
		t.Fatalf("nil store cannot be ready")
	}
}

func TestConversationsOnDay(t *testing.T) {
	s := openFixture(t)
	convs := s.ConversationsOn(context.Background(), 8, 21)
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}

	// most recently active first
	if convs[0].ID != 2 || convs[1].ID != 1 {
		t.Fatalf("order = [%d %d], want [2 1]", convs[0].ID, convs[1].ID)
	}

	group := convs[0]
	if !group.IsGroup {
		t.Fatalf("style 43 chat should be a group")
	}
	if group.MessageCount != 3 {
		t.Fatalf("group message_count = %d want 3", group.MessageCount)
	}
	if len(group.Handles) != 2 {
		t.Fatalf("group handles = %v", group.Handles)
	}
	if group.LastMessagePreview != "works for me" {
		t.Fatalf("group preview = %q", group.LastMessagePreview)
	}

	direct := convs[1]
	if direct.IsGroup {
		t.Fatalf("style 45 chat should not be a group")
	}
	// reactions and retractions count as day activity
	if direct.MessageCount != 5 {
		t.Fatalf("direct message_count = %d want 5", direct.MessageCount)
	}
	wantYears := []int{2021, 2019}
	if len(direct.Years) != len(wantYears) {
		t.Fatalf("years = %v want %v", direct.Years, wantYears)
	}
	for i := range wantYears {
		if direct.Years[i] != wantYears[i] {
			t.Fatalf("years = %v want %v", direct.Years, wantYears)
		}
	}
	if direct.LastMessagePreview != "From the archive" {
		t.Fatalf("blob preview = %q", direct.LastMessagePreview)
	}
	if direct.Name != "+14155552671" {
		t.Fatalf("raw name = %q", direct.Name)
	}
	if direct.LastMessageDate == "" {
		t.Fatalf("missing last message date")
	}
}

func TestConversationsOnQuietDay(t *testing.T) {
	s := openFixture(t)
	convs := s.ConversationsOn(context.Background(), 1, 1)
	if convs == nil || len(convs) != 0 {
		t.Fatalf("quiet day should yield an empty, non-nil slice: %#v", convs)
	}
}

func TestTimelineGroupsByYearAscending(t *testing.T) {
	s := openFixture(t)
	tl, err := s.TimelineOn(context.Background(), 1, 8, 21)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if tl.DisplayName != "+14155552671" {
		t.Fatalf("display name = %q", tl.DisplayName)
	}
	if len(tl.YearGroups) != 2 {
		t.Fatalf("year groups = %d want 2", len(tl.YearGroups))
	}
	if tl.YearGroups[0].Year != 2019 || tl.YearGroups[1].Year != 2021 {
		t.Fatalf("year order = [%d %d]", tl.YearGroups[0].Year, tl.YearGroups[1].Year)
	}

	y2019 := tl.YearGroups[0].Messages
	if len(y2019) != 2 {
		t.Fatalf("2019 messages = %d want 2 (reactions folded)", len(y2019))
	}
	if y2019[0].Text != "Happy birthday!" || y2019[1].Text != "Thanks!" {
		t.Fatalf("2019 order/text = %q, %q", y2019[0].Text, y2019[1].Text)
	}
	if y2019[0].Date >= y2019[1].Date {
		t.Fatalf("messages not chronological: %q then %q", y2019[0].Date, y2019[1].Date)
	}
	if !y2019[1].IsFromMe || y2019[1].DateRead == "" {
		t.Fatalf("own message lost is_from_me/date_read: %+v", y2019[1])
	}

	// tapback folded onto its target, retraction discarded
	if len(y2019[0].Tapbacks) != 1 {
		t.Fatalf("tapbacks on first = %d want 1", len(y2019[0].Tapbacks))
	}
	tb := y2019[0].Tapbacks[0]
	if tb.Type != 2001 || tb.Emoji != "\U0001F44D" || !tb.FromMe {
		t.Fatalf("tapback = %+v", tb)
	}
	if len(y2019[1].Tapbacks) != 0 {
		t.Fatalf("retracted reaction surfaced: %+v", y2019[1].Tapbacks)
	}

	y2021 := tl.YearGroups[1].Messages
	if len(y2021) != 1 {
		t.Fatalf("2021 messages = %d want 1", len(y2021))
	}
	if y2021[0].Text != "From the archive" {
		t.Fatalf("blob text = %q", y2021[0].Text)
	}
	if y2021[0].Year != 2021 {
		t.Fatalf("message year = %d", y2021[0].Year)
	}
	if len(y2021[0].Attachments) != 1 {
		t.Fatalf("attachments = %+v", y2021[0].Attachments)
	}
	att := y2021[0].Attachments[0]
	if att.Filename != "photo one.heic" || att.URL != "/v1/attachments/1" || att.MimeType != "image/heic" {
		t.Fatalf("attachment = %+v", att)
	}
}

func TestTimelineUnknownConversation(t *testing.T) {
	s := openFixture(t)
	if _, err := s.TimelineOn(context.Background(), 404, 8, 21); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v want ErrNotFound", err)
	}
}

func TestTimelineStoreFailureIsNotNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	writeFixture(t, path)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// a broken lookup on an existing chat must not read as a missing one
	_, err = s.TimelineOn(context.Background(), 1, 8, 21)
	if err == nil {
		t.Fatalf("expected error from closed store")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("store failure reported as ErrNotFound: %v", err)
	}
}

func TestTimelineQuietDay(t *testing.T) {
	s := openFixture(t)
	tl, err := s.TimelineOn(context.Background(), 1, 2, 14)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(tl.YearGroups) != 0 {
		t.Fatalf("quiet day should have no groups: %+v", tl.YearGroups)
	}
}

func TestAttachmentPath(t *testing.T) {
	s := openFixture(t)
	path, mime, err := s.AttachmentPath(context.Background(), 1)
	if err != nil {
		t.Fatalf("attachment path: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	want := home + "/Library/Messages/Attachments/ab/photo one.heic"
	if path != want {
		t.Fatalf("path = %q want %q", path, want)
	}
	if mime != "image/heic" {
		t.Fatalf("mime = %q", mime)
	}
}

func TestAttachmentPathMissing(t *testing.T) {
	s := openFixture(t)
	if _, _, err := s.AttachmentPath(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
	if _, _, err := s.AttachmentPath(context.Background(), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("null filename err = %v", err)
	}
}

func TestParseYears(t *testing.T) {
	got := parseYears("2021,2019,2023")
	want := []int{2023, 2021, 2019}
	if len(got) != len(want) {
		t.Fatalf("parseYears = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseYears = %v want %v", got, want)
		}
	}
	if ys := parseYears(""); len(ys) != 0 {
		t.Fatalf("empty concat = %v", ys)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo wörld", 5); got != "héllo" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncateRunes("ab", 5); got != "ab" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := truncateRunes("abc", 0); got != "" {
		t.Fatalf("zero cap = %q", got)
	}
}
