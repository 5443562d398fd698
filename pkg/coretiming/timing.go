// Package coretiming schedules callbacks against a virtual clock.
//
// Virtual time only moves when Advance is called, either directly (tests,
// lock-step emulation) or by Run, which advances it from the host clock.
// Callbacks always run outside the scheduler lock on the advancing goroutine.
package coretiming

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Callback receives how late, in virtual time, the event fired.
type Callback func(late time.Duration)

// Event is a named callback that can be scheduled once at a time.
type Event struct {
	name     string
	callback Callback
}

// NewEvent creates an event. It is not scheduled until passed to
// ScheduleEvent or ScheduleLoopingEvent.
func NewEvent(name string, callback Callback) *Event {
	return &Event{name: name, callback: callback}
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.name
}

type scheduled struct {
	when   time.Duration
	period time.Duration // 0 for one-shot events
	seq    uint64
	event  *Event
	index  int
}

type eventQueue []*scheduled

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].when != q[j].when {
		return q[i].when < q[j].when
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x any) {
	s := x.(*scheduled)
	s.index = len(*q)
	*q = append(*q, s)
}
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*q = old[:n-1]
	return s
}

// CoreTiming is the virtual-time scheduler.
type CoreTiming struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	queue   eventQueue
	byEvent map[*Event]*scheduled

	advanceMu sync.Mutex // serializes Advance callers
}

// New creates a scheduler at virtual time zero.
func New() *CoreTiming {
	return &CoreTiming{byEvent: make(map[*Event]*scheduled)}
}

// Now returns the current virtual time.
func (c *CoreTiming) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// ScheduleEvent fires ev once, after delay. Rescheduling an event that is
// already pending replaces the earlier schedule.
func (c *CoreTiming) ScheduleEvent(delay time.Duration, ev *Event) {
	c.schedule(delay, 0, ev)
}

// ScheduleLoopingEvent fires ev every period, starting one period from now.
func (c *CoreTiming) ScheduleLoopingEvent(period time.Duration, ev *Event) {
	if period <= 0 {
		panic("coretiming: looping period must be positive")
	}
	c.schedule(period, period, ev)
}

func (c *CoreTiming) schedule(delay, period time.Duration, ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byEvent[ev]; ok {
		heap.Remove(&c.queue, old.index)
	}
	c.seq++
	s := &scheduled{when: c.now + delay, period: period, seq: c.seq, event: ev}
	heap.Push(&c.queue, s)
	c.byEvent[ev] = s

	slog.Debug("Event scheduled", "event", ev.name, "at", s.when, "period", period)
}

// UnscheduleEvent removes ev. It is a no-op if ev is not scheduled.
// A callback already running on another goroutine is not interrupted.
func (c *CoreTiming) UnscheduleEvent(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.byEvent[ev]; ok {
		heap.Remove(&c.queue, s.index)
		delete(c.byEvent, ev)
		slog.Debug("Event unscheduled", "event", ev.name)
	}
}

// IsScheduled reports whether ev is pending.
func (c *CoreTiming) IsScheduled(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byEvent[ev]
	return ok
}

// Advance moves virtual time forward by d, firing every event that falls
// due in order. Looping events fire once per elapsed period.
// Returns the number of callbacks run.
func (c *CoreTiming) Advance(d time.Duration) int {
	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()

	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	fired := 0
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].when > target {
			c.now = target
			c.mu.Unlock()
			return fired
		}

		s := c.queue[0]
		fireAt := s.when
		c.now = fireAt
		if s.period > 0 {
			s.when += s.period
			c.seq++
			s.seq = c.seq
			heap.Fix(&c.queue, 0)
		} else {
			heap.Pop(&c.queue)
			delete(c.byEvent, s.event)
		}
		// lateness relative to the clock the caller asked for
		late := target - fireAt
		ev := s.event
		c.mu.Unlock()

		ev.callback(late)
		fired++
	}
}

// Run advances virtual time in step increments from the host clock until
// ctx is done. Virtual time advances by the measured wall time between
// ticks, so it tracks the host clock even when a tick is delivered late.
func (c *CoreTiming) Run(ctx context.Context, step time.Duration) error {
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Advance(now.Sub(last))
			last = now
		}
	}
}
