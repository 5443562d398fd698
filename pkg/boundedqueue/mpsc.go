package boundedqueue

import (
	"context"
	"sync"
)

// MPSC is a bounded multi-producer single-consumer FIFO queue.
// Producers are serialized by a write mutex wrapped around the SPSC engine;
// the consumer side is the SPSC engine unchanged.
type MPSC[T any] struct {
	spsc    *SPSC[T]
	writeMu sync.Mutex
}

// NewMPSC creates a queue holding up to capacity elements.
// It panics if capacity is not a positive power of 2.
func NewMPSC[T any](capacity int) *MPSC[T] {
	return &MPSC[T]{spsc: NewSPSC[T](capacity)}
}

// TryPush appends v unless the queue is full. Safe from any goroutine.
func (q *MPSC[T]) TryPush(v T) bool {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	return q.spsc.TryPush(v)
}

// PushWait appends v, blocking until a slot is free. A producer waiting
// here holds the write mutex, so other producers wait behind it.
func (q *MPSC[T]) PushWait(v T) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	q.spsc.PushWait(v)
}

// PushOverwrite appends v, discarding the oldest element when full.
// Values from one producer keep their relative order.
func (q *MPSC[T]) PushOverwrite(v T) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	q.spsc.PushOverwrite(v)
}

// TryPop removes the oldest element. Consumer only.
func (q *MPSC[T]) TryPop() (T, bool) {
	return q.spsc.TryPop()
}

// PopWait removes the oldest element, blocking until one is available.
// Consumer only.
func (q *MPSC[T]) PopWait() T {
	return q.spsc.PopWait()
}

// PopWaitContext is PopWait that gives up when ctx is done. Consumer only.
func (q *MPSC[T]) PopWaitContext(ctx context.Context) (T, bool) {
	return q.spsc.PopWaitContext(ctx)
}

// Clear discards every queued element. Consumer only.
func (q *MPSC[T]) Clear() {
	q.spsc.Clear()
}

// Empty reports whether the queue was empty at the time of the call.
func (q *MPSC[T]) Empty() bool {
	return q.spsc.Empty()
}

// Size returns a snapshot of the number of queued elements.
func (q *MPSC[T]) Size() int {
	return q.spsc.Size()
}

// Cap returns the fixed capacity of the queue.
func (q *MPSC[T]) Cap() int {
	return q.spsc.Cap()
}
