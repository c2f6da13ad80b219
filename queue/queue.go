// Package queue provides the bounded work channel between the Scanner and
// the Dispatcher's Workers: the single synchronization point
// between producer and consumers.
package queue

import (
	"math/rand"
	"time"

	"github.com/harsh-quidich/camxfer"
)

// Default retry schedule.
const (
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultBackoffFactor  = 2
	DefaultMaxBackoff     = 5 * time.Second
	DefaultMaxAttempts    = 5
	DefaultJitter         = 0.2
)

// Queue is a bounded channel of TransferTasks with attempt-aware
// re-enqueueing. Grounded on the tagged queue's role as "the"
// handoff point between producer and consumers, simplified because this
// protocol has no bins or cross-file predecessor chains to track.
type Queue struct {
	tasks       chan camxfer.TransferTask
	maxAttempts int
}

// New creates a Queue with the given channel capacity.
func New(capacity, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		tasks:       make(chan camxfer.TransferTask, capacity),
		maxAttempts: maxAttempts,
	}
}

// Push enqueues a task, blocking if the queue is full.
func (q *Queue) Push(t camxfer.TransferTask) {
	q.tasks <- t
}

// TryPush enqueues a task without blocking, returning false if the queue is
// full.
func (q *Queue) TryPush(t camxfer.TransferTask) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// Pop blocks until a task is available or the queue is closed.
func (q *Queue) Pop() (camxfer.TransferTask, bool) {
	t, ok := <-q.tasks
	return t, ok
}

// Chan exposes the underlying channel for select-based consumers.
func (q *Queue) Chan() <-chan camxfer.TransferTask {
	return q.tasks
}

// Close signals no more tasks will be pushed.
func (q *Queue) Close() {
	close(q.tasks)
}

// Retry re-enqueues t with Attempts incremented, reporting ok=false once
// maxAttempts is exceeded (the caller should then surface a terminal
// failure). The caller is responsible for sleeping
// Backoff(t.Attempts) before calling Retry.
func (q *Queue) Retry(t camxfer.TransferTask) (ok bool) {
	t.Attempts++
	if t.Attempts > q.maxAttempts {
		return false
	}
	q.Push(t)
	return true
}

// Backoff computes the exponential-with-jitter delay for the given attempt
// count (1-indexed): initial 100ms, factor 2, cap 5s, ±20%
// jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := DefaultInitialBackoff
	for i := 1; i < attempt; i++ {
		d *= DefaultBackoffFactor
		if d > DefaultMaxBackoff {
			d = DefaultMaxBackoff
			break
		}
	}
	jitter := 1 + (rand.Float64()*2-1)*DefaultJitter
	return time.Duration(float64(d) * jitter)
}
