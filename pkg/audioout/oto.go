package audioout

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// OtoConfig configures the oto output.
type OtoConfig struct {
	BufferSize  uint64        // Staging ring size in bytes
	DeviceDelay time.Duration // oto device buffer, 0 for the platform default
}

// OtoSink plays frames through ebitengine/oto. oto allows one context per
// process, so only one OtoSink may exist at a time.
type OtoSink struct {
	*stage
	ctx    *oto.Context
	player *oto.Player

	mu     sync.Mutex
	closed bool
}

// NewOtoSink creates the oto context, waits until the device is ready and
// starts playing.
func NewOtoSink(cfg OtoConfig, format audioframe.FrameFormat) (*OtoSink, error) {
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d", format.BitsPerSample)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(format.SampleRate),
		ChannelCount: int(format.Channels),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.DeviceDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("oto audio not available: %w", err)
	}
	<-ready

	s := &OtoSink{
		stage: newStage(format, cfg.BufferSize, 0),
		ctx:   ctx,
	}
	s.player = ctx.NewPlayer(otoReader{s.stage})
	s.player.Play()
	return s, nil
}

// otoReader is what the oto mixer pulls from. It never reports EOF: an
// empty ring plays silence.
type otoReader struct {
	s *stage
}

func (r otoReader) Read(p []byte) (int, error) {
	n := len(p) / r.s.format.BytesPerFrame() * r.s.format.BytesPerFrame()
	r.s.pull(p[:n])
	return n, nil
}

func (s *OtoSink) Name() string { return "oto" }

func (s *OtoSink) WriteFrame(af *audioframe.AudioFrame) error {
	return s.push(af)
}

// Status implements types.StatusMonitor.
func (s *OtoSink) Status() types.RenderStatus {
	return s.status()
}

// Close stops the player. Safe to call multiple times.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}
