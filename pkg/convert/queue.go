package convert

import (
	"errors"
	"sync/atomic"
)

// Job asks a worker to convert one attachment ahead of its first view.
type Job struct {
	AttachmentID int64
	Path         string
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
// Prewarming is opportunistic, so callers drop the job and move on.
var ErrQueueFull = errors.New("prewarm queue full")

// Queue is a bounded in-memory queue feeding the conversion workers. It
// is safe for concurrent producers.
type Queue struct {
	ch       chan Job
	capacity int
	dropped  uint64
}

// NewQueue creates a bounded Queue. Capacity must be > 0.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{ch: make(chan Job, capacity), capacity: capacity}
}

// TryEnqueue attempts to enqueue a job without blocking. A full queue
// returns ErrQueueFull and bumps the dropped counter.
func (q *Queue) TryEnqueue(job Job) error {
	select {
	case q.ch <- job:
		return nil
	default:
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Close closes the queue channel; workers drain and exit.
func (q *Queue) Close() {
	close(q.ch)
}

// RunWorker consumes jobs until stop is closed or the queue is closed.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(Job)) {
	for {
		select {
		case job, ok := <-q.ch:
			if !ok {
				return
			}
			handler(job)
		case <-stop:
			return
		}
	}
}

// Len returns the current number of queued jobs.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns how many jobs were dropped due to a full queue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
