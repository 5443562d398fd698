package boundedqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the capacity used by callers that have no better idea.
const DefaultCapacity = 0x1000

// SPSC is a bounded single-producer single-consumer FIFO queue.
//
// The queue holds at most Cap() elements in a power-of-2 sized slice indexed
// by monotonically increasing cursors masked with capacity-1. Ownership of a
// pushed value moves into the queue; a popped slot is zeroed so the queue
// does not keep references alive.
//
// Thread safety:
//   - Push methods must only be called by the producer goroutine
//   - Pop methods must only be called by the consumer goroutine
//   - PushOverwrite synchronizes with the consumer, so it may run concurrently
//     with any pop
//
// Blocking waits use two condition variables, one for "space available" and
// one for "data available", so the producer and the consumer never share a
// wait queue.
type SPSC[T any] struct {
	readIndex  atomic.Uint64
	_pad1      [56]byte
	writeIndex atomic.Uint64
	_pad2      [56]byte

	data []T
	size uint64 // must be power of 2
	mask uint64 // size - 1, for efficient modulo

	producerMu   sync.Mutex
	producerCond *sync.Cond
	consumerMu   sync.Mutex
	consumerCond *sync.Cond
}

// NewSPSC creates a queue holding up to capacity elements.
// It panics if capacity is not a positive power of 2.
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("boundedqueue: capacity must be a power of two, got %d", capacity))
	}

	q := &SPSC[T]{
		data: make([]T, capacity),
		size: uint64(capacity),
		mask: uint64(capacity - 1),
	}
	q.producerCond = sync.NewCond(&q.producerMu)
	q.consumerCond = sync.NewCond(&q.consumerMu)
	return q
}

// TryPush appends v unless the queue is full.
// Returns false, without blocking, when there is no free slot.
func (q *SPSC[T]) TryPush(v T) bool {
	w := q.writeIndex.Load()
	if w-q.readIndex.Load() == q.size {
		return false
	}
	q.publish(w, v)
	return true
}

// PushWait appends v, blocking until a slot is free.
func (q *SPSC[T]) PushWait(v T) {
	w := q.writeIndex.Load()

	q.producerMu.Lock()
	for w-q.readIndex.Load() == q.size {
		q.producerCond.Wait()
	}
	q.producerMu.Unlock()

	q.publish(w, v)
}

// PushOverwrite appends v and never fails. When the queue is full the
// oldest unread element is discarded to make room; its consumer is not told.
func (q *SPSC[T]) PushOverwrite(v T) {
	q.consumerMu.Lock()
	w := q.writeIndex.Load()
	if r := q.readIndex.Load(); w-r == q.size {
		var zero T
		q.data[r&q.mask] = zero
		q.readIndex.Store(r + 1)
	}
	q.data[w&q.mask] = v
	q.writeIndex.Store(w + 1)
	q.consumerCond.Signal()
	q.consumerMu.Unlock()
}

// publish stores v in slot w and wakes the consumer.
func (q *SPSC[T]) publish(w uint64, v T) {
	// The consumer never touches slot w before writeIndex moves past it.
	q.data[w&q.mask] = v
	q.writeIndex.Store(w + 1)

	q.consumerMu.Lock()
	q.consumerCond.Signal()
	q.consumerMu.Unlock()
}

// TryPop removes the oldest element.
// Returns false when the queue is empty.
func (q *SPSC[T]) TryPop() (T, bool) {
	q.consumerMu.Lock()
	if q.readIndex.Load() == q.writeIndex.Load() {
		q.consumerMu.Unlock()
		var zero T
		return zero, false
	}
	v := q.take()
	q.consumerMu.Unlock()

	q.notifyProducer()
	return v, true
}

// PopWait removes the oldest element, blocking until one is available.
func (q *SPSC[T]) PopWait() T {
	q.consumerMu.Lock()
	for q.readIndex.Load() == q.writeIndex.Load() {
		q.consumerCond.Wait()
	}
	v := q.take()
	q.consumerMu.Unlock()

	q.notifyProducer()
	return v
}

// PopWaitContext is PopWait that gives up when ctx is done.
// Returns false if ctx ended before an element became available.
func (q *SPSC[T]) PopWaitContext(ctx context.Context) (T, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.consumerMu.Lock()
		q.consumerCond.Broadcast()
		q.consumerMu.Unlock()
	})
	defer stop()

	q.consumerMu.Lock()
	for q.readIndex.Load() == q.writeIndex.Load() {
		if ctx.Err() != nil {
			q.consumerMu.Unlock()
			var zero T
			return zero, false
		}
		q.consumerCond.Wait()
	}
	v := q.take()
	q.consumerMu.Unlock()

	q.notifyProducer()
	return v, true
}

// take moves the element at the read cursor out of the queue.
// Caller must hold consumerMu and have checked the queue is not empty.
func (q *SPSC[T]) take() T {
	r := q.readIndex.Load()
	pos := r & q.mask
	v := q.data[pos]
	var zero T
	q.data[pos] = zero
	q.readIndex.Store(r + 1)
	return v
}

func (q *SPSC[T]) notifyProducer() {
	q.producerMu.Lock()
	q.producerCond.Signal()
	q.producerMu.Unlock()
}

// Clear discards every queued element. Consumer side only.
func (q *SPSC[T]) Clear() {
	for {
		if _, ok := q.TryPop(); !ok {
			return
		}
	}
}

// Empty reports whether the queue held no elements at the time of the call.
// The answer is advisory under concurrency.
func (q *SPSC[T]) Empty() bool {
	return q.readIndex.Load() == q.writeIndex.Load()
}

// Size returns a snapshot of the number of queued elements, never more
// than Cap().
func (q *SPSC[T]) Size() int {
	// read first: the write cursor can only have moved further since
	r := q.readIndex.Load()
	w := q.writeIndex.Load()
	// overwrites may advance both cursors between the loads
	return int(min(w-r, q.size))
}

// Cap returns the fixed capacity of the queue.
func (q *SPSC[T]) Cap() int {
	return int(q.size)
}
