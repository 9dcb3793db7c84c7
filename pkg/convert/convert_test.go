package convert

import (
	"context"
	"sync"
	"testing"
)

func TestIsHEIC(t *testing.T) {
	cases := []struct {
		mime, path string
		want       bool
	}{
		{"image/heic", "IMG_0001", true},
		{"public.heic", "photo.bin", true},
		{"", "/Library/IMG_0002.HEIC", true},
		{"", "photo.heif", true},
		{"image/jpeg", "photo.jpg", false},
		{"", "photo.png", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := IsHEIC(c.mime, c.path); got != c.want {
			t.Errorf("IsHEIC(%q, %q) = %v, want %v", c.mime, c.path, got, c.want)
		}
	}
}

func TestToJPEGMissingBinary(t *testing.T) {
	c := New(t.TempDir())
	c.Bin = "definitely-not-sips"
	if _, err := c.ToJPEG(context.Background(), "/nonexistent/in.heic"); err == nil {
		t.Fatal("expected error from missing converter binary")
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	q := NewQueue(2)
	if err := q.TryEnqueue(Job{AttachmentID: 1}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.TryEnqueue(Job{AttachmentID: 2}); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if err := q.TryEnqueue(Job{AttachmentID: 3}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Fatalf("len/cap = %d/%d, want 2/2", q.Len(), q.Cap())
	}
}

func TestQueueWorkerDrains(t *testing.T) {
	q := NewQueue(8)
	var mu sync.Mutex
	var seen []int64

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.RunWorker(stop, func(j Job) {
			mu.Lock()
			seen = append(seen, j.AttachmentID)
			mu.Unlock()
		})
	}()

	for i := int64(1); i <= 3; i++ {
		if err := q.TryEnqueue(Job{AttachmentID: i}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("worker handled %d jobs, want 3", len(seen))
	}
}
