package audioout

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/ringbuffer"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// stageRetries bounds how long WriteFrame waits for a device to drain the
// ring before it drops a frame.
const stageRetries = 8

// stage is the producer half shared by the pull-based device sinks.
type stage struct {
	format    audioframe.FrameFormat
	ring      *ringbuffer.PCMRing
	played    atomic.Uint64 // sample frames the device pulled, silence excluded
	dropped   atomic.Uint64
	bufFrames int
}

func newStage(format audioframe.FrameFormat, ringBytes uint64, framesPerBuffer int) *stage {
	return &stage{
		format:    format,
		ring:      ringbuffer.New(ringBytes),
		bufFrames: framesPerBuffer,
	}
}

// push stages af, waiting briefly for room. Frames that still do not fit
// are dropped.
func (s *stage) push(af *audioframe.AudioFrame) error {
	if af.Format != s.format {
		return fmt.Errorf("%w: got %+v, want %+v", ErrFormatChanged, af.Format, s.format)
	}

	backoff := max(af.Duration()/4, time.Millisecond)
	for range stageRetries {
		_, err := s.ring.Write(af.Audio)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ringbuffer.ErrInsufficientSpace) {
			return err
		}
		time.Sleep(backoff)
	}
	s.dropped.Add(1)
	return nil
}

// pull fills out for the device. Always fills it completely.
func (s *stage) pull(out []byte) {
	n := s.ring.Fill(out)
	s.played.Add(uint64(n / s.format.BytesPerFrame()))
}

func (s *stage) status() types.RenderStatus {
	underruns, _ := s.ring.Underruns()
	return types.RenderStatus{
		SampleRate:      int(s.format.SampleRate),
		Channels:        int(s.format.Channels),
		FramesPerBuffer: s.bufFrames,
		PlayedSamples:   s.played.Load(),
		BufferedSamples: s.ring.Buffered() / uint64(s.format.BytesPerFrame()),
		Underruns:       underruns,
	}
}
