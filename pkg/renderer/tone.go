package renderer

import (
	"io"
	"math"
)

// Tone is a sine wave Source, identical on every channel.
type Tone struct {
	step      float64 // phase increment per sample frame
	phase     float64
	amplitude float64
	channels  int
	remaining int // sample frames left, -1 for endless
}

// NewTone returns an endless sine at freq Hz. amplitude is in [0, 1].
func NewTone(freq float64, sampleRate, channels int, amplitude float64) *Tone {
	return &Tone{
		step:      2 * math.Pi * freq / float64(sampleRate),
		amplitude: math.Max(0, math.Min(1, amplitude)) * math.MaxInt16,
		channels:  max(channels, 1),
		remaining: -1,
	}
}

// Limit makes the tone end after frames sample frames.
func (t *Tone) Limit(frames int) *Tone {
	t.remaining = frames
	return t
}

func (t *Tone) ReadSamples(dst []int16) (int, error) {
	frames := len(dst) / t.channels
	if t.remaining >= 0 {
		if t.remaining == 0 {
			return 0, io.EOF
		}
		frames = min(frames, t.remaining)
		t.remaining -= frames
	}

	for f := 0; f < frames; f++ {
		v := int16(t.amplitude * math.Sin(t.phase))
		for ch := 0; ch < t.channels; ch++ {
			dst[f*t.channels+ch] = v
		}
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return frames * t.channels, nil
}
