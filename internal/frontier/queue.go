package frontier

import "sync"

type FIFOQueue[T any] []T

func NewFIFOQueue[T any]() *FIFOQueue[T] {
	return &FIFOQueue[T]{}
}

func (f *FIFOQueue[T]) Enqueue(item T) {
	*f = append(*f, item)
}

// return false on the second returned values if queue is empty
func (f *FIFOQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(*f) == 0 {
		return zero, false
	}
	first := (*f)[0]
	*f = (*f)[1:]
	return first, true
}

func (f *FIFOQueue[T]) Size() int {
	return len(*f)
}

// ConcurrentQueue wraps FIFOQueue with a mutex so the worker pool can
// share it. Dequeue never blocks; workers poll with their own idle
// timeout and exit when the crawl drains.
type ConcurrentQueue[T any] struct {
	mu    sync.Mutex
	queue FIFOQueue[T]
}

func NewConcurrentQueue[T any]() *ConcurrentQueue[T] {
	return &ConcurrentQueue[T]{}
}

func (c *ConcurrentQueue[T]) Enqueue(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Enqueue(item)
}

// TryDequeue pops the oldest item, or reports false when empty.
func (c *ConcurrentQueue[T]) TryDequeue() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Dequeue()
}

func (c *ConcurrentQueue[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Size()
}

// Drain empties the queue and returns the remaining items in order.
// Used when the stop signal trips and queued work must be discarded.
func (c *ConcurrentQueue[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := make([]T, len(c.queue))
	copy(remaining, c.queue)
	c.queue = c.queue[:0]
	return remaining
}
