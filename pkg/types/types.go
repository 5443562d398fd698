package types

import (
	"time"

	"github.com/drgolem/ringbuffer"
)

// AudioDecoder is the common interface for the file decoders (MP3, FLAC,
// Ogg, WAV) that feed renderer voices.
type AudioDecoder interface {
	// Open opens an audio file for decoding
	Open(fileName string) error

	// Close closes the decoder and releases resources
	Close() error

	// GetFormat returns the decoded format
	// Returns: sample rate (Hz), channels (1=mono, 2=stereo), bits per sample
	GetFormat() (rate, channels, bitsPerSample int)

	// DecodeSamples decodes up to samples sample frames (not bytes!) into
	// audio and returns the number of frames decoded. io.EOF marks the end
	// of the stream.
	DecodeSamples(samples int, audio []byte) (int, error)
}

// RenderStatus is a snapshot of the render pipeline as seen by an output.
type RenderStatus struct {
	Output          string        // Output backend name
	SampleRate      int           // Output sample rate in Hz
	Channels        int           // Output channel count
	FramesPerBuffer int           // Backend frames per buffer callback (if applicable)
	FramesRendered  uint64        // DSP frames consumed from the output queue
	PlayedSamples   uint64        // Sample frames handed to the backend
	BufferedSamples uint64        // Sample frames staged but not yet played
	Underruns       uint64        // Backend pulls that had to be padded with silence
	ElapsedTime     time.Duration // Wall-clock time since the output started
}

// StatusMonitor is implemented by outputs that can report RenderStatus.
type StatusMonitor interface {
	Status() RenderStatus
}

// Ring buffer errors shared with github.com/drgolem/ringbuffer so callers
// can match either implementation with errors.Is.
var (
	// ErrInsufficientSpace indicates the ring doesn't have enough space for the write
	ErrInsufficientSpace = ringbuffer.ErrInsufficientSpace

	// ErrInsufficientData indicates the ring doesn't have enough data for the read
	ErrInsufficientData = ringbuffer.ErrInsufficientData
)
