// Package queue buffers records between the lifecycle and slow writers.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. A queue created with a positive limit
// drops new items once full and counts them.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: make([]T, 0)}
}

// NewBounded creates a queue holding at most limit items.
func NewBounded[T any](limit int) *Queue[T] {
	q := New[T]()
	if limit > 0 {
		q.limit = limit
	}
	return q
}

// Push appends items and returns how many were accepted.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(items)
	if q.limit > 0 {
		if free := q.limit - len(q.items); n > free {
			n = max(free, 0)
		}
	}
	q.items = append(q.items, items[:n]...)
	q.dropped += uint64(len(items) - n)
	return n
}

// Pop removes and returns the first item. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Drain removes and returns up to n items in FIFO order. n <= 0 drains all.
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]T, n)
	copy(out, q.items[:n])
	rest := make([]T, len(q.items)-n, max(cap(q.items)-n, len(q.items)-n))
	copy(rest, q.items[n:])
	q.items = rest
	return out
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Dropped returns how many items a bounded queue has refused.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear removes all items from the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}
