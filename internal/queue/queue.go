// Package queue provides unbounded FIFO queues.
package queue

// Queue is an unbounded FIFO queue of T.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false when the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (item T, ok bool)
	// Reset drops all queued items.
	Reset()
	IsEmpty() bool
	Length() int
}
