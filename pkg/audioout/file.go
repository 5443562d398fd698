package audioout

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/youpy/go-wav"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// WAVSink records frames and writes them as a 16-bit PCM WAV file on Close.
// The RIFF header carries the sample count up front, so audio is held in
// memory until then.
type WAVSink struct {
	path   string
	format audioframe.FrameFormat
	data   bytes.Buffer
	frames atomic.Uint64 // sample frames recorded

	mu     sync.Mutex
	closed bool
}

// NewWAVSink creates a sink that will write path. The file is created on
// Close.
func NewWAVSink(path string, format audioframe.FrameFormat) *WAVSink {
	return &WAVSink{path: path, format: format}
}

func (s *WAVSink) Name() string { return "wav" }

func (s *WAVSink) WriteFrame(af *audioframe.AudioFrame) error {
	if af.Format != s.format {
		return fmt.Errorf("%w: got %+v, want %+v", ErrFormatChanged, af.Format, s.format)
	}
	s.data.Write(af.Audio)
	s.frames.Add(uint64(af.SamplesCount))
	return nil
}

// Status implements types.StatusMonitor.
func (s *WAVSink) Status() types.RenderStatus {
	return types.RenderStatus{
		SampleRate:    int(s.format.SampleRate),
		Channels:      int(s.format.Channels),
		PlayedSamples: s.frames.Load(),
	}
}

// Close writes the file. Safe to call multiple times; only the first call
// writes.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	fOut, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fOut.Close()

	numSamples := uint32(s.data.Len() / s.format.BytesPerFrame())
	w := wav.NewWriter(fOut, numSamples, uint16(s.format.Channels), s.format.SampleRate, uint16(s.format.BitsPerSample))
	if _, err := w.Write(s.data.Bytes()); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return fOut.Close()
}

// NullSink discards frames.
type NullSink struct {
	format audioframe.FrameFormat
	frames atomic.Uint64
}

func NewNullSink(format audioframe.FrameFormat) *NullSink {
	return &NullSink{format: format}
}

func (s *NullSink) Name() string { return "null" }

func (s *NullSink) WriteFrame(af *audioframe.AudioFrame) error {
	s.frames.Add(uint64(af.SamplesCount))
	return nil
}

func (s *NullSink) Status() types.RenderStatus {
	return types.RenderStatus{
		SampleRate:    int(s.format.SampleRate),
		Channels:      int(s.format.Channels),
		PlayedSamples: s.frames.Load(),
	}
}

func (s *NullSink) Close() error { return nil }
