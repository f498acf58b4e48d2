// Package queue provides the pending-write buffers that sit between the
// frame loop and the batched database writer.
package queue

import "sync"

// Queue is an unbounded FIFO safe for concurrent use. Popped slots keep
// their backing array until the head catches up, so Drain is the preferred
// way to hand a batch to the writer.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends one or more items.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	q.buf = append(q.buf, items...)
	q.mu.Unlock()
}

// Pop removes and returns the oldest item, or the zero value when the
// queue is empty.
func (q *Queue[T]) Pop() (item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.buf) {
		return item
	}
	item = q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return item
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Clear discards all pending items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.buf = nil
	q.head = 0
	q.mu.Unlock()
}

// Drain removes and returns every pending item in insertion order. The
// returned slice is owned by the caller; on write failure the batch can be
// pushed back for the next cycle.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.buf) {
		return nil
	}
	out := make([]T, len(q.buf)-q.head)
	copy(out, q.buf[q.head:])
	q.buf = q.buf[:0]
	q.head = 0
	return out
}
