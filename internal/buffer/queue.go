// Package buffer provides the unbounded FIFO that decouples the socket reader
// from frame dispatch. Frames are never dropped: a dropped response would
// leave its request pending forever.
package buffer

import "sync"

// Queue is a goroutine-safe FIFO that doubles its ring when full.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	count  int
	closed bool

	pushed int64
	popped int64
	grown  int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.ring) {
		q.grow()
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.pushed++
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false when the queue
// is closed and fully drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.take()
}

// Close stops further pushes and wakes blocked readers. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Capacity: len(q.ring),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Grown:    q.grown,
	}
}

// Stats contains queue counters.
type Stats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Grown    int
}

// take must be called with the lock held.
func (q *Queue[T]) take() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++
	return item, true
}

// grow must be called with the lock held.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.ring)*2)
	n := copy(next, q.ring[q.head:])
	copy(next[n:], q.ring[:q.head])

	q.ring = next
	q.head = 0
	q.grown++
}
