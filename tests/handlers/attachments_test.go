package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	utils "retrospect/tests/utils"
)

// pngBytes is a tiny valid PNG header plus payload, enough for MIME
// detection.
var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 32)...)

func TestServeAttachment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(file, pngBytes, 0o600); err != nil {
		t.Fatalf("write attachment: %v", err)
	}

	srv, _ := utils.SetupServer(t, file)
	defer srv.Close()

	res, err := http.DefaultClient.Get(srv.URL + "/v1/attachments/1")
	if err != nil {
		t.Fatalf("GET attachment: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q, want image/png", ct)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) != len(pngBytes) {
		t.Fatalf("served %d bytes, want %d", len(body), len(pngBytes))
	}
}

func TestServeAttachmentMissingFile(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	// attachment 2 exists in the archive but its file is gone from disk
	if code := getJSON(t, srv.URL+"/v1/attachments/2", nil); code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", code)
	}
}

func TestServeAttachmentUnknownID(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	if code := getJSON(t, srv.URL+"/v1/attachments/9999", nil); code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", code)
	}
	if code := getJSON(t, srv.URL+"/v1/attachments/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 for non-numeric id", code)
	}
}
