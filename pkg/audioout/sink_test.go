package audioout

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/boundedqueue"
)

var stereo48k = audioframe.FrameFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16}

func frame(tick uint64, v int16, frames int) audioframe.AudioFrame {
	samples := make([]int16, frames*2)
	for i := range samples {
		samples[i] = v
	}
	return audioframe.FromInt16(tick, 48000, 2, samples)
}

func TestPumpDeliversInOrder(t *testing.T) {
	q := boundedqueue.NewSPSC[audioframe.AudioFrame](16)
	sink := &recordingSink{}
	pump := NewPump(q, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- pump.Run(ctx) }()

	for i := uint64(0); i < 5; i++ {
		q.PushWait(frame(i, int16(i), 4))
	}
	require.Eventually(t, func() bool { return pump.Status().FramesRendered == 5 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for i, tick := range sink.ticks() {
		assert.Equal(t, uint64(i), tick)
	}
	st := pump.Status()
	assert.Equal(t, "recording", st.Output)
	assert.Equal(t, uint64(20), st.PlayedSamples)
	assert.Zero(t, pump.Skipped())
}

func TestPumpCountsOverwrittenFrames(t *testing.T) {
	q := boundedqueue.NewSPSC[audioframe.AudioFrame](4)
	for i := uint64(0); i < 7; i++ {
		q.PushOverwrite(frame(i, 0, 1))
	}

	sink := NewNullSink(stereo48k)
	pump := NewPump(q, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	require.Eventually(t, func() bool { return pump.Status().FramesRendered == 4 }, time.Second, time.Millisecond)
	// ticks 3..6 survive; the gap is only visible once a later tick arrives
	q.PushWait(frame(9, 0, 1))
	require.Eventually(t, func() bool { return pump.Skipped() == 2 }, time.Second, time.Millisecond)
}

func TestPumpStopsOnSinkError(t *testing.T) {
	q := boundedqueue.NewSPSC[audioframe.AudioFrame](4)
	sink := NewWAVSink(filepath.Join(t.TempDir(), "x.wav"), stereo48k)
	pump := NewPump(q, sink)

	mono := audioframe.FromInt16(0, 48000, 1, []int16{1, 2})
	q.PushWait(mono)

	err := pump.Run(context.Background())
	assert.ErrorIs(t, err, ErrFormatChanged)
}

func TestWAVSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	sink := NewWAVSink(path, stereo48k)

	require.NoError(t, sink.WriteFrame(ptr(frame(0, 100, 240))))
	require.NoError(t, sink.WriteFrame(ptr(frame(1, -100, 240))))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Equal(t, uint64(480), sink.Status().PlayedSamples)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), format.SampleRate)
	assert.Equal(t, uint16(2), format.NumChannels)
	assert.Equal(t, uint16(16), format.BitsPerSample)

	samples, err := r.ReadSamples(480)
	require.NoError(t, err)
	require.Len(t, samples, 480)
	assert.Equal(t, 100, samples[0].Values[0])
	assert.Equal(t, -100, samples[479].Values[1])
}

func TestStageDropsWhenDeviceStalls(t *testing.T) {
	af := frame(0, 7, 4) // 16 bytes
	s := newStage(stereo48k, 32, 4)

	require.NoError(t, s.push(&af))
	require.NoError(t, s.push(&af))
	require.NoError(t, s.push(&af))
	assert.Equal(t, uint64(1), s.dropped.Load())

	out := make([]byte, 48)
	s.pull(out)
	st := s.status()
	assert.Equal(t, uint64(8), st.PlayedSamples)
	assert.Equal(t, uint64(1), st.Underruns)
	assert.Zero(t, st.BufferedSamples)
	assert.Equal(t, make([]byte, 16), out[32:])
}

func TestStageRejectsFormatChange(t *testing.T) {
	s := newStage(stereo48k, 64, 4)
	mono := audioframe.FromInt16(0, 48000, 1, []int16{1})
	assert.ErrorIs(t, s.push(&mono), ErrFormatChanged)
}

func ptr(af audioframe.AudioFrame) *audioframe.AudioFrame { return &af }

type recordingSink struct {
	mu     sync.Mutex
	frames []audioframe.AudioFrame
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) WriteFrame(af *audioframe.AudioFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, *af)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) ticks() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Tick
	}
	return out
}
