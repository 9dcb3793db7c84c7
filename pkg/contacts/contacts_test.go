package contacts

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+1 (415) 555-2671", "4155552671"},
		{"555-2671", "5552671"},
		{"(415) 555-2671", "4155552671"},
		{"+44 20 7946 0958 x99", "7946095899"},
		{"no digits", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Fatalf("NormalizePhone(%q) = %q want %q", c.in, got, c.want)
		}
	}
}

func TestLooksLikeRawIdentifier(t *testing.T) {
	raw := []string{"", "+14155552671", "415-555-2671", "(415) 555 2671", "chat503893739398632983"}
	for _, s := range raw {
		if !looksLikeRawIdentifier(s) {
			t.Fatalf("%q should read as a raw identifier", s)
		}
	}
	names := []string{"Avery Chen", "chat", "Breakfast Club", "chatty crew"}
	for _, s := range names {
		if looksLikeRawIdentifier(s) {
			t.Fatalf("%q should not read as a raw identifier", s)
		}
	}
}

func TestResolveName(t *testing.T) {
	r := NewStatic(map[string]string{
		"4155552671":        "Avery Chen",
		"jordan@sample.net": "Jordan Ruiz",
	})

	if got := r.ResolveName("+1 (415) 555-2671"); got != "Avery Chen" {
		t.Fatalf("phone lookup = %q", got)
	}
	if got := r.ResolveName("Jordan@Sample.NET"); got != "Jordan Ruiz" {
		t.Fatalf("email lookup = %q", got)
	}
	if got := r.ResolveName("+1 (999) 555-0000"); got != "+1 (999) 555-0000" {
		t.Fatalf("unresolved phone should pass through, got %q", got)
	}
	if got := r.ResolveName("nobody@sample.net"); got != "nobody@sample.net" {
		t.Fatalf("unresolved email should pass through, got %q", got)
	}
	if got := r.ResolveName(""); got != "" {
		t.Fatalf("empty handle should stay empty, got %q", got)
	}
}

func TestResolveConversationName(t *testing.T) {
	r := NewStatic(map[string]string{
		"4155552671": "Avery Chen",
		"4155550001": "Blair Kim",
	})

	if got := r.ResolveConversationName("Breakfast Club", []string{"+14155552671"}, true); got != "Breakfast Club" {
		t.Fatalf("real display name replaced: %q", got)
	}
	if got := r.ResolveConversationName("+14155552671", []string{"+14155552671"}, false); got != "Avery Chen" {
		t.Fatalf("identifier display name not resolved: %q", got)
	}
	if got := r.ResolveConversationName("", nil, false); got != "Unknown" {
		t.Fatalf("empty conversation = %q want Unknown", got)
	}
	if got := r.ResolveConversationName("+14155552671", nil, false); got != "Avery Chen" {
		t.Fatalf("display name used as handle fallback: %q", got)
	}
	if got := r.ResolveConversationName("chat12345", nil, false); got != "chat12345" {
		t.Fatalf("unresolvable identifier should pass through: %q", got)
	}
}

func TestResolveConversationNameGroups(t *testing.T) {
	r := NewStatic(map[string]string{"4155552671": "Avery Chen"})

	handles := []string{"+14155552671", "one@x.co", "two@x.co", "three@x.co", "four@x.co", "five@x.co"}
	got := r.ResolveConversationName("chat9988", handles, true)
	want := "Avery Chen, one@x.co, two@x.co, three@x.co..."
	if got != want {
		t.Fatalf("group name = %q want %q", got, want)
	}

	small := r.ResolveConversationName("", handles[:2], true)
	if small != "Avery Chen, one@x.co" {
		t.Fatalf("small group name = %q", small)
	}
}

// writeAddressBook builds a minimal AddressBook-v22.abcddb fixture.
func writeAddressBook(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE ZABCDRECORD (Z_PK INTEGER PRIMARY KEY, ZFIRSTNAME TEXT, ZLASTNAME TEXT)`,
		`CREATE TABLE ZABCDPHONENUMBER (ZOWNER INTEGER, ZFULLNUMBER TEXT)`,
		`CREATE TABLE ZABCDEMAILADDRESS (ZOWNER INTEGER, ZADDRESS TEXT)`,
		`INSERT INTO ZABCDRECORD VALUES (1, 'Avery', 'Chen')`,
		`INSERT INTO ZABCDRECORD VALUES (2, 'Jordan', NULL)`,
		`INSERT INTO ZABCDPHONENUMBER VALUES (1, '+1 (415) 555-2671')`,
		`INSERT INTO ZABCDEMAILADDRESS VALUES (2, 'Jordan@Sample.NET')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestLoadFromAddressBookDir(t *testing.T) {
	dir := t.TempDir()
	writeAddressBook(t, filepath.Join(dir, "Sources", "ab1", addressBookFile))
	writeAddressBook(t, filepath.Join(dir, addressBookFile))

	r := New(dir)
	if got := r.ResolveName("4155552671"); got != "Avery Chen" {
		t.Fatalf("phone from fixture = %q", got)
	}
	if got := r.ResolveName("jordan@sample.net"); got != "Jordan" {
		t.Fatalf("email from fixture = %q", got)
	}
	if r.Size() == 0 {
		t.Fatalf("expected cache entries after load")
	}
}

func TestLoadMissingDirIsQuiet(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "absent"))
	if got := r.ResolveName("+14155552671"); got != "+14155552671" {
		t.Fatalf("missing dir should leave handles unresolved, got %q", got)
	}
	if r.Size() != 0 {
		t.Fatalf("expected empty cache")
	}
}
