package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

// Decoder reads PCM WAV files and always emits 16-bit little-endian
// samples, whatever the stored bit depth.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	srcBits  int
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}
	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		file.Close()
		return fmt.Errorf("unsupported bits per sample: %d", format.BitsPerSample)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.srcBits = int(format.BitsPerSample)
	return nil
}

// Close closes the WAV file
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// GetFormat returns the decoded format. Output is always 16-bit.
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, 16
}

// SourceBitsPerSample returns the bit depth stored in the file.
func (d *Decoder) SourceBitsPerSample() int {
	return d.srcBits
}

// DecodeSamples decodes up to samples sample frames into audio as 16-bit
// interleaved PCM. Returns the number of frames decoded; io.EOF once the
// data chunk is exhausted.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	samples = min(samples, len(audio)/(2*d.channels))
	if samples == 0 {
		return 0, nil
	}

	frames, err := d.reader.ReadSamples(uint32(samples))
	for i, frame := range frames {
		for ch := 0; ch < d.channels && ch < len(frame.Values); ch++ {
			off := (i*d.channels + ch) * 2
			binary.LittleEndian.PutUint16(audio[off:], uint16(to16(frame.Values[ch], d.srcBits)))
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return len(frames), fmt.Errorf("read WAV samples: %w", err)
	}
	if len(frames) == 0 {
		return 0, io.EOF
	}
	return len(frames), nil
}

// to16 rescales a sample of the given width to int16.
func to16(v int, bits int) int16 {
	switch bits {
	case 8:
		// 8-bit WAV is unsigned
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
