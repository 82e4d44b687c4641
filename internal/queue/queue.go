// Package queue implements the bounded in-memory ingestion queue of file IDs.
package queue

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// ErrClosed is returned by Enqueue and Dequeue once the queue is closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of file identifiers with back-pressure. It is safe
// for concurrent use by multiple producers and consumers.
type Queue struct {
	items     chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:  make(chan string, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue adds id, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	if q.isClosed() {
		return ErrClosed
	}
	select {
	case q.items <- id:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an item is available, the queue is closed or ctx is
// done. A closed queue yields ErrClosed even if items remain.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	if q.isClosed() {
		return "", ErrClosed
	}
	select {
	case id := <-q.items:
		return id, nil
	case <-q.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close wakes every blocked caller. It is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}

func (q *Queue) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}
