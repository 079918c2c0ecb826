package queue

import (
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeQueue is a concurrent, unbounded Michael-Scott queue.
//
// Enqueue never blocks, so a producer running on a latency sensitive goroutine can hand items
// to a slower consumer without waiting on it. Use Signal to wait for new items.
type LockFreeQueue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int64
	signal chan struct{}
}

var _ Queue[int] = (*LockFreeQueue[int])(nil)

// NewLockFreeQueue creates an empty LockFreeQueue.
func NewLockFreeQueue[T any]() *LockFreeQueue[T] {
	q := &LockFreeQueue[T]{signal: make(chan struct{}, 1)}
	n := &node[T]{}
	q.head.Store(n)
	q.tail.Store(n)

	return q
}

// Signal returns a channel that receives a value after an Enqueue. Several enqueues may be
// coalesced into one signal, so the consumer drains the queue after each receive.
func (q *LockFreeQueue[T]) Signal() <-chan struct{} {
	return q.signal
}

// Reset drops all queued items. It must not race with other operations.
func (q *LockFreeQueue[T]) Reset() {
	n := &node[T]{}
	q.head.Store(n)
	q.tail.Store(n)
	q.length.Store(0)
}

// Enqueue adds an item to the tail of the queue.
func (q *LockFreeQueue[T]) Enqueue(item T) {
	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}

		if next != nil {
			// tail is lagging, help advance it
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)
			break
		}
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the item at the head of the queue.
func (q *LockFreeQueue[T]) Dequeue() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}

		if head == tail {
			if next == nil {
				var zero T
				return zero, false
			}
			q.tail.CompareAndSwap(tail, next)

			continue
		}

		// read the value before the CAS, another consumer may advance past next
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)
			return value, true
		}
	}
}

// Peek returns the item at the head of the queue without removing it.
func (q *LockFreeQueue[T]) Peek() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}

		if head != tail {
			return next.value, true
		}

		if next == nil {
			var zero T
			return zero, false
		}
		q.tail.CompareAndSwap(tail, next)
	}
}

func (q *LockFreeQueue[T]) IsEmpty() bool {
	return q.length.Load() == 0
}

func (q *LockFreeQueue[T]) Length() int {
	return int(q.length.Load())
}
