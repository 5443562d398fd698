package boundedqueue

import (
	"context"
	"sync"
)

// MPMC is a bounded multi-producer multi-consumer FIFO queue.
// It adds a read mutex on top of MPSC so several consumers take turns on
// the single-consumer side of the engine.
type MPMC[T any] struct {
	spsc    *SPSC[T]
	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewMPMC creates a queue holding up to capacity elements.
// It panics if capacity is not a positive power of 2.
func NewMPMC[T any](capacity int) *MPMC[T] {
	return &MPMC[T]{spsc: NewSPSC[T](capacity)}
}

// TryPush appends v unless the queue is full. Safe from any goroutine.
func (q *MPMC[T]) TryPush(v T) bool {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	return q.spsc.TryPush(v)
}

// PushWait appends v, blocking until a slot is free. A producer waiting
// here holds the write mutex, so other producers wait behind it.
func (q *MPMC[T]) PushWait(v T) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	q.spsc.PushWait(v)
}

// PushOverwrite appends v, discarding the oldest element when full.
// Values from one producer keep their relative order.
func (q *MPMC[T]) PushOverwrite(v T) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	q.spsc.PushOverwrite(v)
}

// TryPop removes the oldest element. It takes the read mutex, so it waits
// for a consumer blocked in PopWait.
func (q *MPMC[T]) TryPop() (T, bool) {
	q.readMu.Lock()
	defer q.readMu.Unlock()
	return q.spsc.TryPop()
}

// PopWait blocks while holding the read mutex, so other consumers queue up
// behind the one that is waiting.
func (q *MPMC[T]) PopWait() T {
	q.readMu.Lock()
	defer q.readMu.Unlock()
	return q.spsc.PopWait()
}

// PopWaitContext is PopWait that gives up when ctx is done. Time spent
// waiting for the read mutex counts against ctx only once it is acquired.
func (q *MPMC[T]) PopWaitContext(ctx context.Context) (T, bool) {
	q.readMu.Lock()
	defer q.readMu.Unlock()
	return q.spsc.PopWaitContext(ctx)
}

// Clear discards every queued element. Takes the read mutex.
func (q *MPMC[T]) Clear() {
	q.readMu.Lock()
	defer q.readMu.Unlock()
	q.spsc.Clear()
}

// Empty reports whether the queue was empty at the time of the call.
// It reads the cursors without the read mutex, so it never waits behind a
// blocked consumer; the answer is advisory.
func (q *MPMC[T]) Empty() bool {
	return q.spsc.Empty()
}

// Size returns a snapshot of the number of queued elements. Like Empty it
// does not take the read mutex.
func (q *MPMC[T]) Size() int {
	return q.spsc.Size()
}

// Cap returns the fixed capacity of the queue.
func (q *MPMC[T]) Cap() int {
	return q.spsc.Cap()
}
