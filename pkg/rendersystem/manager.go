// Package rendersystem drives the audio render loop.
//
// A SystemManager owns one render goroutine that, once per timer tick, asks
// every registered renderer system to submit its command buffer to the DSP,
// signals the DSP and waits for it to finish before sleeping until the next
// tick. The goroutine and the DSP only run while at least one system is
// registered.
package rendersystem

import (
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/drgolem/audiorenderer/pkg/adsp"
	"github.com/drgolem/audiorenderer/pkg/coretiming"
)

const (
	// MaxRendererSessions is the default number of systems that may be
	// registered at once.
	MaxRendererSessions = 2

	// RenderTimeSlice is the virtual-time period between ticks.
	RenderTimeSlice = 2 * 2_304_000 * time.Nanosecond
)

var (
	ErrTooManySystems    = errors.New("rendersystem: maximum number of render systems active")
	ErrAlreadyRegistered = errors.New("rendersystem: render system already registered")
	ErrNotFound          = errors.New("rendersystem: render system not found")
	ErrStartFailed       = errors.New("rendersystem: failed to start the DSP")
)

// System is a renderer session as seen by the render loop.
// SendCommandToDsp runs on the render goroutine once per tick and must
// return quickly: every other system waits behind it.
type System interface {
	SendCommandToDsp()
}

// DSP is the backend the render loop hands work to.
type DSP interface {
	Start() bool
	Stop()
	State() adsp.State
	Signal()
	Wait()
}

// Timing schedules the tick event.
type Timing interface {
	ScheduleLoopingEvent(period time.Duration, ev *coretiming.Event)
	UnscheduleEvent(ev *coretiming.Event)
}

// Stats are cumulative render loop counters.
type Stats struct {
	Ticks            uint64
	Overruns         uint64 // ticks whose work took longer than the period
	LastTickDuration time.Duration
	MaxTickDuration  time.Duration
}

// Option configures a SystemManager.
type Option func(*SystemManager)

// WithMaxSystems overrides MaxRendererSessions.
func WithMaxSystems(n int) Option {
	return func(m *SystemManager) { m.maxSystems = n }
}

// WithPeriod overrides RenderTimeSlice.
func WithPeriod(d time.Duration) Option {
	return func(m *SystemManager) { m.period = d }
}

// WithOverrunLimiter replaces the limiter used to throttle overrun warnings.
func WithOverrunLimiter(l *catrate.Limiter) Option {
	return func(m *SystemManager) { m.overrunLog = l }
}

// SystemManager multiplexes renderer systems onto one DSP.
//
// Lock order: mu2 (membership) before mu1 (iteration). The render goroutine
// only ever takes mu1; the timer callback takes neither.
type SystemManager struct {
	dsp        DSP
	timing     Timing
	event      *coretiming.Event
	period     time.Duration
	maxSystems int
	overrunLog *catrate.Limiter

	mu2     sync.Mutex // serializes Add/Remove/Close and the start/stop transitions
	mu1     sync.Mutex // guards systems against a render pass
	systems []System

	active atomic.Bool
	done   chan struct{} // closed when the render goroutine exits

	updateMu   sync.Mutex
	updateCond *sync.Cond
	update     bool

	ticks     atomic.Uint64
	overruns  atomic.Uint64
	lastTick  atomic.Int64
	worstTick atomic.Int64
}

// New creates an inactive manager. Nothing runs until the first Add.
func New(dsp DSP, timing Timing, opts ...Option) *SystemManager {
	m := &SystemManager{
		dsp:        dsp,
		timing:     timing,
		period:     RenderTimeSlice,
		maxSystems: MaxRendererSessions,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.overrunLog == nil {
		m.overrunLog = catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		})
	}
	m.updateCond = sync.NewCond(&m.updateMu)
	m.event = coretiming.NewEvent("AudioRendererSystemManager", func(time.Duration) {
		m.requestUpdate()
	})
	return m
}

// Add registers sys. The first registration starts the DSP, the tick event
// and the render goroutine; if the DSP fails to start nothing is registered
// and ErrStartFailed is returned. sys must be comparable.
func (m *SystemManager) Add(sys System) error {
	m.mu2.Lock()
	defer m.mu2.Unlock()

	if len(m.systems)+1 > m.maxSystems {
		slog.Error("Maximum AudioRenderer systems active, cannot add more",
			"max", m.maxSystems)
		return ErrTooManySystems
	}
	if slices.Contains(m.systems, sys) {
		slog.Error("AudioRenderer system already registered")
		return ErrAlreadyRegistered
	}

	m.mu1.Lock()
	defer m.mu1.Unlock()

	if len(m.systems) == 0 && !m.initializeLocked() {
		slog.Error("Failed to start the AudioRenderer SystemManager")
		return ErrStartFailed
	}
	m.systems = append(m.systems, sys)

	slog.Debug("AudioRenderer system added", "systems", len(m.systems))
	return nil
}

// Remove unregisters sys. Removing the last system stops the render
// goroutine and the DSP before Remove returns. Once Remove returns, sys is
// never called again.
func (m *SystemManager) Remove(sys System) error {
	m.mu2.Lock()
	defer m.mu2.Unlock()

	m.mu1.Lock()
	i := slices.Index(m.systems, sys)
	if i < 0 {
		m.mu1.Unlock()
		slog.Error("Failed to remove a render system, it was not found in the list")
		return ErrNotFound
	}
	m.systems = slices.Delete(m.systems, i, i+1)
	empty := len(m.systems) == 0
	m.mu1.Unlock()

	slog.Debug("AudioRenderer system removed", "systems", len(m.systems))

	if empty {
		m.stopLocked()
	}
	return nil
}

// Close stops the render loop if it is running and forgets every system.
// The manager may be reused afterwards.
func (m *SystemManager) Close() {
	m.mu2.Lock()
	defer m.mu2.Unlock()

	m.stopLocked()

	m.mu1.Lock()
	m.systems = nil
	m.mu1.Unlock()
}

// Active reports whether the render goroutine is running.
func (m *SystemManager) Active() bool {
	return m.active.Load()
}

// Len returns the number of registered systems.
func (m *SystemManager) Len() int {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	return len(m.systems)
}

// Stats returns a snapshot of the render loop counters.
func (m *SystemManager) Stats() Stats {
	return Stats{
		Ticks:            m.ticks.Load(),
		Overruns:         m.overruns.Load(),
		LastTickDuration: time.Duration(m.lastTick.Load()),
		MaxTickDuration:  time.Duration(m.worstTick.Load()),
	}
}

// initializeLocked is the Inactive→Active transition.
// Caller must hold mu2 and mu1.
func (m *SystemManager) initializeLocked() bool {
	if !m.active.Load() {
		if m.dsp.Start() {
			m.updateMu.Lock()
			m.update = false
			m.updateMu.Unlock()

			m.active.Store(true)
			m.timing.ScheduleLoopingEvent(m.period, m.event)

			m.done = make(chan struct{})
			go m.run(m.done)

			slog.Info("AudioRenderer SystemManager started", "period", m.period)
		}
	}
	return m.dsp.State() == adsp.Started
}

// stopLocked is the Active→Inactive transition. A tick in progress is
// allowed to finish; the goroutine exits before starting another.
// Caller must hold mu2 and must not hold mu1.
func (m *SystemManager) stopLocked() {
	if !m.active.Load() {
		return
	}

	m.timing.UnscheduleEvent(m.event)
	m.active.Store(false)
	m.requestUpdate()
	<-m.done
	m.dsp.Stop()

	slog.Info("AudioRenderer SystemManager stopped", "ticks", m.ticks.Load())
}

// requestUpdate is the tick event callback: it never blocks beyond the
// flag mutex and never touches the system list.
func (m *SystemManager) requestUpdate() {
	m.updateMu.Lock()
	m.update = true
	m.updateCond.Broadcast()
	m.updateMu.Unlock()
}

func (m *SystemManager) waitForUpdate() {
	m.updateMu.Lock()
	for !m.update {
		m.updateCond.Wait()
	}
	m.update = false
	m.updateMu.Unlock()
}

// run is the render goroutine.
func (m *SystemManager) run(done chan struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := raiseThreadPriority(); err != nil {
		slog.Debug("Render thread priority unchanged", "error", err)
	}

	for m.active.Load() {
		start := time.Now()

		m.mu1.Lock()
		for _, sys := range m.systems {
			sys.SendCommandToDsp()
		}
		m.mu1.Unlock()

		m.dsp.Signal()
		m.dsp.Wait()

		m.recordTick(time.Since(start))
		m.waitForUpdate()
	}
}

func (m *SystemManager) recordTick(d time.Duration) {
	m.ticks.Add(1)
	m.lastTick.Store(int64(d))
	for {
		worst := m.worstTick.Load()
		if int64(d) <= worst || m.worstTick.CompareAndSwap(worst, int64(d)) {
			break
		}
	}

	if d > m.period {
		m.overruns.Add(1)
		if _, ok := m.overrunLog.Allow("overrun"); ok {
			slog.Warn("Audio render tick overran its period",
				"duration", d,
				"period", m.period,
				"overruns", m.overruns.Load())
		}
	}
}
