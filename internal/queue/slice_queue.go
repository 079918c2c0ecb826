package queue

// SliceQueue is a slice backed queue. It is not safe for concurrent use; the owner
// serializes access.
type SliceQueue[T any] struct {
	items []T
}

var _ Queue[int] = (*SliceQueue[int])(nil)

// NewSliceQueue creates a SliceQueue with room for prealloc items.
func NewSliceQueue[T any](prealloc int) *SliceQueue[T] {
	return &SliceQueue[T]{items: make([]T, 0, prealloc)}
}

func (q *SliceQueue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// PushFront puts item back at the head of the queue, e.g. a message whose send attempt
// lost line contention and must go first on the next attempt.
func (q *SliceQueue[T]) PushFront(item T) {
	var zero T
	q.items = append(q.items, zero)
	copy(q.items[1:], q.items)
	q.items[0] = item
}

func (q *SliceQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}

	return item, true
}

func (q *SliceQueue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Drain removes and returns all queued items in order.
func (q *SliceQueue[T]) Drain() []T {
	items := q.items
	q.items = nil

	return items
}

func (q *SliceQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

func (q *SliceQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

func (q *SliceQueue[T]) Length() int {
	return len(q.items)
}
