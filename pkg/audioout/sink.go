// Package audioout moves mixed DSP frames to an output: a sound device
// through PortAudio or oto, a WAV file, or nowhere.
//
// The DSP publishes frames on a bounded queue. A Pump pops them and writes
// each one to a Sink. Device sinks stage PCM in a ringbuffer.PCMRing that
// the device pulls from on its own thread, padding with silence when the
// render loop falls behind.
package audioout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// ErrFormatChanged is returned by sinks that cannot follow a change of frame
// format mid-stream.
var ErrFormatChanged = errors.New("audioout: frame format changed")

// Sink consumes mixed frames. WriteFrame is only ever called from one
// goroutine.
type Sink interface {
	Name() string
	WriteFrame(af *audioframe.AudioFrame) error
	Close() error
}

// FrameSource is the consumer side of the DSP output queue.
type FrameSource interface {
	PopWaitContext(ctx context.Context) (audioframe.AudioFrame, bool)
}

// Pump copies frames from a FrameSource to a Sink.
type Pump struct {
	src  FrameSource
	sink Sink

	started atomic.Int64 // unix nanos
	frames  atomic.Uint64
	samples atomic.Uint64
	skipped atomic.Uint64 // frames overwritten before they were popped
}

// NewPump creates a pump from src to sink.
func NewPump(src FrameSource, sink Sink) *Pump {
	return &Pump{src: src, sink: sink}
}

// Run pumps until ctx is done or the sink fails. A cancelled context is a
// clean stop and returns nil.
func (p *Pump) Run(ctx context.Context) error {
	p.started.Store(time.Now().UnixNano())
	var lastTick uint64
	first := true

	for {
		af, ok := p.src.PopWaitContext(ctx)
		if !ok {
			slog.Debug("Pump stopped", "sink", p.sink.Name(), "frames", p.frames.Load())
			return nil
		}

		if !first && af.Tick > lastTick+1 {
			gap := af.Tick - lastTick - 1
			p.skipped.Add(gap)
			slog.Debug("Output fell behind, frames overwritten", "missing", gap)
		}
		first = false
		lastTick = af.Tick

		if err := p.sink.WriteFrame(&af); err != nil {
			return fmt.Errorf("%s sink: %w", p.sink.Name(), err)
		}
		p.frames.Add(1)
		p.samples.Add(uint64(af.SamplesCount))
	}
}

// Skipped returns the number of DSP frames that were overwritten before the
// pump could read them.
func (p *Pump) Skipped() uint64 {
	return p.skipped.Load()
}

// Status merges the pump counters with whatever the sink reports.
// Implements types.StatusMonitor.
func (p *Pump) Status() types.RenderStatus {
	var st types.RenderStatus
	if m, ok := p.sink.(types.StatusMonitor); ok {
		st = m.Status()
	}
	st.Output = p.sink.Name()
	st.FramesRendered = p.frames.Load()
	if st.PlayedSamples == 0 && st.BufferedSamples == 0 {
		st.PlayedSamples = p.samples.Load()
	}
	if ns := p.started.Load(); ns != 0 {
		st.ElapsedTime = time.Since(time.Unix(0, ns))
	}
	return st
}
