package mp3

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/imcarsen/go-mp3"
)

// Decoder decodes MP3 files with a pure Go decoder. Output is always
// 16-bit little-endian stereo.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file    *os.File
	decoder *mp3.Decoder
	rate    int
}

const (
	channels       = 2
	bytesPerSample = 2
	frameBytes     = channels * bytesPerSample
)

// NewDecoder creates a new MP3 decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an MP3 file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	d.file = file
	d.decoder = decoder
	d.rate = decoder.SampleRate()
	return nil
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, channels, bytesPerSample * 8
}

// DecodeSamples decodes up to samples stereo frames into audio.
// Returns the number of frames decoded.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	want := min(samples*frameBytes, len(audio)/frameBytes*frameBytes)
	n, err := io.ReadFull(d.decoder, audio[:want])
	frames := n / frameBytes
	switch {
	case err == nil:
		return frames, nil
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		if frames == 0 {
			return 0, io.EOF
		}
		return frames, nil
	default:
		return frames, fmt.Errorf("decode mp3: %w", err)
	}
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.decoder = nil
	return err
}

// Length returns the decoded stream length in sample frames.
func (d *Decoder) Length() int64 {
	if d.decoder == nil {
		return 0
	}
	return d.decoder.Length() / frameBytes
}
