package audioout

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// PortAudioConfig configures a PortAudio output stream.
type PortAudioConfig struct {
	DeviceIndex     int    // PortAudio device index
	FramesPerBuffer int    // Frames per device callback
	BufferSize      uint64 // Staging ring size in bytes (rounded to a power of 2)
}

// PortAudioSink plays frames through a PortAudio callback stream.
// portaudio.Initialize must have been called.
//
// The callback runs on PortAudio's own audio thread and only reads the
// staging ring, so it never blocks and never allocates.
type PortAudioSink struct {
	*stage
	stream *portaudio.PaStream

	mu     sync.Mutex
	closed bool
}

// NewPortAudioSink opens and starts a stream for format.
func NewPortAudioSink(cfg PortAudioConfig, format audioframe.FrameFormat) (*PortAudioSink, error) {
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d", format.BitsPerSample)
	}

	s := &PortAudioSink{
		stage: newStage(format, cfg.BufferSize, cfg.FramesPerBuffer),
	}
	s.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  cfg.DeviceIndex,
			ChannelCount: int(format.Channels),
			SampleFormat: portaudio.SampleFmtInt16,
		},
		SampleRate: float64(format.SampleRate),
	}

	if err := s.stream.OpenCallback(cfg.FramesPerBuffer, s.audioCallback); err != nil {
		return nil, fmt.Errorf("failed to open stream with callback: %w", err)
	}
	if err := s.stream.StartStream(); err != nil {
		s.stream.CloseCallback()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	slog.Debug("PortAudio stream started",
		"device", cfg.DeviceIndex,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"frames_per_buffer", cfg.FramesPerBuffer)
	return s, nil
}

func (s *PortAudioSink) Name() string { return "portaudio" }

func (s *PortAudioSink) WriteFrame(af *audioframe.AudioFrame) error {
	return s.push(af)
}

// audioCallback runs on the PortAudio thread.
func (s *PortAudioSink) audioCallback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	bytesNeeded := min(int(frameCount)*s.format.BytesPerFrame(), len(output))
	s.pull(output[:bytesNeeded])
	return portaudio.Continue
}

// Status implements types.StatusMonitor.
func (s *PortAudioSink) Status() types.RenderStatus {
	return s.status()
}

// Close stops and closes the stream. Safe to call multiple times.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.stream.StopStream(); err != nil {
		slog.Warn("Failed to stop stream", "error", err)
	}
	if err := s.stream.CloseCallback(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}
