package flac

import (
	"errors"
	"fmt"
	"io"

	goflac "github.com/drgolem/go-flac/flac"
)

// outputBits is the PCM width requested from libFLAC. Voices are mixed as
// 16-bit, so FLAC files of any depth are decoded straight to it.
const outputBits = 16

// Decoder wraps the go-flac frame decoder.
// Implements types.AudioDecoder interface.
type Decoder struct {
	decoder  *goflac.FlacDecoder
	rate     int
	channels int
}

// NewDecoder creates a new FLAC decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes a FLAC file for decoding
func (d *Decoder) Open(fileName string) error {
	decoder, err := goflac.NewFlacFrameDecoder(outputBits)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Open(fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	rate, channels, _ := decoder.GetFormat()
	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	return nil
}

// GetFormat returns the audio format (rate, channels, bits per sample).
// Zero values until a file is opened.
func (d *Decoder) GetFormat() (int, int, int) {
	if d.decoder == nil {
		return 0, 0, 0
	}
	return d.rate, d.channels, outputBits
}

// DecodeSamples decodes up to samples frames into audio.
// A decoder that has run dry reports io.EOF.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	samples = min(samples, len(audio)/(d.channels*outputBits/8))
	n, err := d.decoder.DecodeSamples(samples, audio)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("decode flac: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Close closes the decoder and releases resources. Safe to call repeatedly.
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}
