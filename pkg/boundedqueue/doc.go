// Package boundedqueue provides fixed-capacity FIFO queues for handing
// values between goroutines.
//
// SPSC is the engine: a power-of-2 ring with atomic cursors and separate
// producer/consumer condition variables. MPSC and MPMC wrap the same engine
// with a mutex per side that has more than one participant.
//
// Push policies:
//   - TryPush fails immediately when full
//   - PushWait blocks until a slot frees
//   - PushOverwrite never fails and drops the oldest unread element when full
//
// Pop policies:
//   - TryPop fails immediately when empty
//   - PopWait blocks until an element arrives
//   - PopWaitContext blocks until an element arrives or the context ends
package boundedqueue

import "context"

// Queue is the common surface of SPSC, MPSC and MPMC.
type Queue[T any] interface {
	TryPush(v T) bool
	PushWait(v T)
	PushOverwrite(v T)
	TryPop() (T, bool)
	PopWait() T
	PopWaitContext(ctx context.Context) (T, bool)
	Clear()
	Empty() bool
	Size() int
	Cap() int
}

var (
	_ Queue[int] = (*SPSC[int])(nil)
	_ Queue[int] = (*MPSC[int])(nil)
	_ Queue[int] = (*MPMC[int])(nil)
)
