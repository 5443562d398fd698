package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// Decoder decodes Ogg Vorbis files, converting the float output to 16-bit
// little-endian PCM.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file     *os.File
	reader   *oggvorbis.Reader
	rate     int
	channels int
	floats   []float32
}

// NewDecoder creates a new Ogg Vorbis decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an Ogg Vorbis file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()
	return nil
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, 16
}

// DecodeSamples decodes up to samples frames into audio.
// Returns the number of frames decoded.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	samples = min(samples, len(audio)/(2*d.channels))
	need := samples * d.channels
	if cap(d.floats) < need {
		d.floats = make([]float32, need)
	}
	buf := d.floats[:need]

	// Read may return less than a whole frame set; keep going until full
	got := 0
	var err error
	for got < need {
		var n int
		n, err = d.reader.Read(buf[got:])
		got += n
		if err != nil || n == 0 {
			break
		}
	}

	frames := got / d.channels
	for i, v := range buf[:frames*d.channels] {
		binary.LittleEndian.PutUint16(audio[i*2:], uint16(floatTo16(v)))
	}

	switch {
	case err == nil:
		if frames == 0 {
			return 0, io.EOF
		}
		return frames, nil
	case errors.Is(err, io.EOF):
		if frames == 0 {
			return 0, io.EOF
		}
		return frames, nil
	default:
		return frames, fmt.Errorf("decode ogg: %w", err)
	}
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

func floatTo16(v float32) int16 {
	s := float64(v) * math.MaxInt16
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, s)))
}
