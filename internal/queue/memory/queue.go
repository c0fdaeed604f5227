// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// dequeuePollTimeout bounds how long Dequeue blocks before reporting
// ErrNoJob, so worker loops can observe shutdown promptly.
const dequeuePollTimeout = 5 * time.Second

var errClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. The
// job channel is never closed; Close signals through done so a concurrent
// Enqueue returns an error instead of panicking on a closed channel.
type Queue struct {
	ch      chan reader.FetchJob
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan reader.FetchJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends or
// the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, job reader.FetchJob) error {
	// Check done first: the select below picks randomly among ready
	// cases, so without this an Enqueue after Close could still land
	// in the buffered channel.
	select {
	case <-q.done:
		return errClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return errClosed
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. It returns
// reader.ErrNoJob when the poll timeout elapses with an empty queue.
func (q *Queue) Dequeue(ctx context.Context) (reader.FetchJob, error) {
	timer := time.NewTimer(dequeuePollTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return reader.FetchJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return reader.FetchJob{}, errClosed
	case <-timer.C:
		return reader.FetchJob{}, reader.ErrNoJob
	case job := <-q.ch:
		return job, nil
	}
}

// Close marks the queue closed for shutdown. Safe to call more than once
// and safe against in-flight Enqueue/Dequeue calls.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.done)
	q.closed = true
}
