package audioframe

import (
	"encoding/binary"
	"fmt"
	"time"
)

// HeaderSize is the encoded size of everything in an AudioFrame but Audio.
const HeaderSize = 20

type FrameFormat struct {
	SampleRate    uint32 // Sample rate in Hz (max 384,000)
	Channels      uint8  // Number of channels (max 10)
	BitsPerSample uint8  // Bits per sample, the DSP always emits 16
}

// BytesPerFrame returns the size of one interleaved sample frame.
func (f FrameFormat) BytesPerFrame() int {
	return int(f.Channels) * int(f.BitsPerSample) / 8
}

// AudioFrame is the mixed output of one DSP tick.
type AudioFrame struct {
	Tick         uint64 // DSP tick that produced the frame
	Format       FrameFormat
	SamplesCount uint16 // Samples per channel
	Audio        []byte // Interleaved little-endian PCM (last field for better memory layout)
}

// FromInt16 packs interleaved int16 samples into a 16-bit frame.
func FromInt16(tick uint64, sampleRate uint32, channels uint8, samples []int16) AudioFrame {
	audio := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(audio[i*2:], uint16(s))
	}
	return AudioFrame{
		Tick: tick,
		Format: FrameFormat{
			SampleRate:    sampleRate,
			Channels:      channels,
			BitsPerSample: 16,
		},
		SamplesCount: uint16(len(samples) / max(int(channels), 1)),
		Audio:        audio,
	}
}

// Int16 decodes Audio of a 16-bit frame into dst, growing it if needed.
func (af *AudioFrame) Int16(dst []int16) []int16 {
	n := len(af.Audio) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(af.Audio[i*2:]))
	}
	return dst
}

// Duration returns the playback length of the frame.
func (af *AudioFrame) Duration() time.Duration {
	if af.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(af.SamplesCount) * time.Second / time.Duration(af.Format.SampleRate)
}

// Marshal serializes AudioFrame to a byte slice using little-endian encoding
//
// Binary format (tightly packed, 20 bytes header):
//   - Tick (8 bytes, uint64)
//   - SampleRate (4 bytes, uint32)
//   - Channels (1 byte, uint8)
//   - BitsPerSample (1 byte, uint8)
//   - SamplesCount (2 bytes, uint16)
//   - Audio length (4 bytes, uint32)
//   - Audio data (variable length)
func (af *AudioFrame) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(af.Audio))

	binary.LittleEndian.PutUint64(buf[0:8], af.Tick)
	binary.LittleEndian.PutUint32(buf[8:12], af.Format.SampleRate)
	buf[12] = af.Format.Channels
	buf[13] = af.Format.BitsPerSample
	binary.LittleEndian.PutUint16(buf[14:16], af.SamplesCount)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(af.Audio)))

	copy(buf[HeaderSize:], af.Audio)
	return buf
}

// Unmarshal deserializes a byte slice produced by Marshal.
//
// Returns error if:
//   - Buffer is too small (< 20 bytes for header)
//   - Audio length field exceeds remaining buffer size
func (af *AudioFrame) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("buffer too small: got %d bytes, need at least %d bytes", len(data), HeaderSize)
	}

	af.Tick = binary.LittleEndian.Uint64(data[0:8])
	af.Format.SampleRate = binary.LittleEndian.Uint32(data[8:12])
	af.Format.Channels = data[12]
	af.Format.BitsPerSample = data[13]
	af.SamplesCount = binary.LittleEndian.Uint16(data[14:16])
	audioLen := int(binary.LittleEndian.Uint32(data[16:20]))

	if len(data) < HeaderSize+audioLen {
		return fmt.Errorf("buffer too small for audio data: got %d bytes, need %d bytes", len(data), HeaderSize+audioLen)
	}

	af.Audio = make([]byte, audioLen)
	copy(af.Audio, data[HeaderSize:HeaderSize+audioLen])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler interface
func (af *AudioFrame) MarshalBinary() ([]byte, error) {
	return af.Marshal(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface
func (af *AudioFrame) UnmarshalBinary(data []byte) error {
	return af.Unmarshal(data)
}
