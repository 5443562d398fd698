// Package adsp simulates the audio DSP that executes renderer command
// buffers.
//
// The DSP runs on its own goroutine and talks to the host only through a
// Mailbox: the host posts MsgRender (Signal) and blocks for
// MsgRenderResponse (Wait). Each render pass executes the command buffers
// submitted since the previous pass, mixes them into one interleaved 16-bit
// frame and publishes it on the output queue.
package adsp

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/boundedqueue"
	"github.com/drgolem/audiorenderer/pkg/syncpoint"
)

// State is the DSP run state.
type State int32

const (
	Stopped State = iota
	Started
)

func (s State) String() string {
	if s == Started {
		return "started"
	}
	return "stopped"
}

// ErrStartRejected is reported when the configured start check refuses to
// let the DSP start.
var ErrStartRejected = errors.New("adsp: start rejected")

// Config holds DSP configuration
type Config struct {
	SampleRate     int           // Output sample rate in Hz
	Channels       int           // Output channel count
	SamplesPerTick int           // Sample frames produced per render pass
	OutputCapacity int           // Output queue capacity in frames (power of 2)
	ProcessDelay   time.Duration // Simulated processing time per render pass
}

// DefaultConfig returns the 48 kHz stereo, 240 samples per tick layout the
// guest renderer expects.
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		Channels:       2,
		SamplesPerTick: 240,
		OutputCapacity: 64,
	}
}

// Stats are cumulative DSP counters.
type Stats struct {
	Ticks              uint64
	BuffersExecuted    uint64
	BuffersSuperseded  uint64
	CommandsExecuted   uint64
	LastRenderDuration time.Duration
}

// ADSP is the simulated DSP.
type ADSP struct {
	cfg        Config
	syncpoints *syncpoint.Manager
	mailbox    *Mailbox
	output     *boundedqueue.SPSC[audioframe.AudioFrame]
	startCheck func() error

	// serializes Start/Stop
	mu    sync.Mutex
	state atomic.Int32
	wg    sync.WaitGroup

	buffersMu sync.Mutex
	pending   map[uint32]CommandBuffer

	// owned by the DSP goroutine
	tick      uint64
	mixBuf    []int32
	outBuf    []int32
	samples16 []int16

	ticks             atomic.Uint64
	buffersExecuted   atomic.Uint64
	buffersSuperseded atomic.Uint64
	commandsExecuted  atomic.Uint64
	lastRender        atomic.Int64
}

// New creates a stopped DSP. Retired command buffers increment host
// syncpoints on sp.
func New(cfg Config, sp *syncpoint.Manager) *ADSP {
	frameLen := cfg.SamplesPerTick * cfg.Channels
	return &ADSP{
		cfg:        cfg,
		syncpoints: sp,
		mailbox:    newMailbox(),
		output:     boundedqueue.NewSPSC[audioframe.AudioFrame](cfg.OutputCapacity),
		pending:    make(map[uint32]CommandBuffer),
		mixBuf:     make([]int32, frameLen),
		outBuf:     make([]int32, frameLen),
		samples16:  make([]int16, frameLen),
	}
}

// SetStartCheck installs a hook consulted by Start; a non-nil error makes
// Start fail without side effects.
func (a *ADSP) SetStartCheck(check func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startCheck = check
}

// Config returns the DSP configuration.
func (a *ADSP) Config() Config {
	return a.cfg
}

// Output returns the queue mixed frames are published on. Frames are pushed
// with the overwrite policy: a consumer that falls behind loses the oldest
// frames, never the newest.
func (a *ADSP) Output() *boundedqueue.SPSC[audioframe.AudioFrame] {
	return a.output
}

// State returns the run state.
func (a *ADSP) State() State {
	return State(a.state.Load())
}

// Start launches the DSP goroutine. Returns true if the DSP is running when
// Start returns. Starting a started DSP is a no-op that returns true.
func (a *ADSP) Start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() == Started {
		return true
	}
	if a.startCheck != nil {
		if err := a.startCheck(); err != nil {
			slog.Error("Failed to start ADSP", "error", fmt.Errorf("%w: %w", ErrStartRejected, err))
			return false
		}
	}

	a.mailbox.reset()
	a.state.Store(int32(Started))
	a.wg.Add(1)
	go a.run()

	slog.Debug("ADSP started",
		"sample_rate", a.cfg.SampleRate,
		"channels", a.cfg.Channels,
		"samples_per_tick", a.cfg.SamplesPerTick)
	return true
}

// Stop shuts the DSP goroutine down and retires any command buffers it never
// executed. Safe to call multiple times.
//
// Stop must not race an outstanding Signal/Wait pair; the render system
// joins its render goroutine before stopping the DSP.
func (a *ADSP) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() == Stopped {
		return
	}

	a.mailbox.HostSend(MsgShutdown)
	for {
		msg := a.mailbox.HostReceive()
		if msg == MsgShutdownAck {
			break
		}
		slog.Warn("Discarding ADSP message during shutdown", "message", msg)
	}
	a.wg.Wait()
	a.state.Store(int32(Stopped))

	a.buffersMu.Lock()
	for _, id := range slices.Sorted(maps.Keys(a.pending)) {
		a.retire(a.pending[id])
		delete(a.pending, id)
	}
	a.buffersMu.Unlock()

	slog.Debug("ADSP stopped", "ticks", a.ticks.Load())
}

// Signal asks the DSP to execute the submitted command buffers.
// It does not wait for the work; pair every Signal with a Wait.
func (a *ADSP) Signal() {
	if a.State() != Started {
		slog.Debug("ADSP signal while stopped")
		return
	}
	a.mailbox.HostSend(MsgRender)
}

// Wait blocks until the DSP has finished the pass requested by Signal.
func (a *ADSP) Wait() {
	if a.State() != Started {
		return
	}
	for {
		msg := a.mailbox.HostReceive()
		if msg == MsgRenderResponse {
			return
		}
		slog.Warn("Unexpected ADSP message", "message", msg)
	}
}

// SetCommandBuffer queues cb for the next render pass. A buffer from the
// same session that has not been executed yet is superseded and retired.
// Returns true if a buffer was superseded.
func (a *ADSP) SetCommandBuffer(cb CommandBuffer) bool {
	a.buffersMu.Lock()
	defer a.buffersMu.Unlock()

	old, replaced := a.pending[cb.SessionID]
	if replaced {
		a.buffersSuperseded.Add(1)
		a.retire(old)
	}
	a.pending[cb.SessionID] = cb
	return replaced
}

// retire marks cb as done for whoever waits on its syncpoint.
func (a *ADSP) retire(cb CommandBuffer) {
	if a.syncpoints != nil {
		a.syncpoints.IncrementHost(cb.SyncpointID)
	}
}

// Stats returns a snapshot of the DSP counters.
func (a *ADSP) Stats() Stats {
	return Stats{
		Ticks:              a.ticks.Load(),
		BuffersExecuted:    a.buffersExecuted.Load(),
		BuffersSuperseded:  a.buffersSuperseded.Load(),
		CommandsExecuted:   a.commandsExecuted.Load(),
		LastRenderDuration: time.Duration(a.lastRender.Load()),
	}
}

// run is the DSP goroutine main loop.
func (a *ADSP) run() {
	defer a.wg.Done()

	for {
		switch msg := a.mailbox.dspReceive(); msg {
		case MsgRender:
			a.render()
			a.mailbox.dspSend(MsgRenderResponse)
		case MsgShutdown:
			a.mailbox.dspSend(MsgShutdownAck)
			return
		default:
			slog.Warn("ADSP received unexpected message", "message", msg)
		}
	}
}

// render executes one pass over every pending command buffer, in session id
// order, and publishes the mixed frame.
func (a *ADSP) render() {
	start := time.Now()

	a.buffersMu.Lock()
	batch := a.pending
	a.pending = make(map[uint32]CommandBuffer, len(batch))
	a.buffersMu.Unlock()

	clear(a.outBuf)
	commands := 0
	ids := slices.Sorted(maps.Keys(batch))
	for _, id := range ids {
		cb := batch[id]
		commands += cb.execute(a.mixBuf, a.outBuf, a.cfg.Channels)
	}

	for i, v := range a.outBuf {
		a.samples16[i] = clampInt16(v)
	}
	frame := audioframe.FromInt16(a.tick, uint32(a.cfg.SampleRate), uint8(a.cfg.Channels), a.samples16)
	a.output.PushOverwrite(frame)
	a.tick++

	if a.cfg.ProcessDelay > 0 {
		time.Sleep(a.cfg.ProcessDelay)
	}

	for _, id := range ids {
		a.retire(batch[id])
	}

	a.ticks.Add(1)
	a.buffersExecuted.Add(uint64(len(ids)))
	a.commandsExecuted.Add(uint64(commands))
	a.lastRender.Store(int64(time.Since(start)))
}
