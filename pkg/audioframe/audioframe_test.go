package audioframe

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFromInt16(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	frame := FromInt16(7, 48000, 2, samples)

	if frame.Tick != 7 {
		t.Errorf("Tick: got %d, want 7", frame.Tick)
	}
	if frame.SamplesCount != 3 {
		t.Errorf("SamplesCount: got %d, want 3", frame.SamplesCount)
	}
	if frame.Format.BitsPerSample != 16 {
		t.Errorf("BitsPerSample: got %d, want 16", frame.Format.BitsPerSample)
	}
	if frame.Format.BytesPerFrame() != 4 {
		t.Errorf("BytesPerFrame: got %d, want 4", frame.Format.BytesPerFrame())
	}

	want := []byte{0x00, 0x00, 0x01, 0x00, 0xFF, 0xFF, 0xFF, 0x7F, 0x00, 0x80, 0x00, 0x01}
	if !bytes.Equal(frame.Audio, want) {
		t.Errorf("Audio: got %v, want %v", frame.Audio, want)
	}

	decoded := frame.Int16(nil)
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Int16[%d]: got %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		rate    uint32
		samples uint16
		want    time.Duration
	}{
		{48000, 240, 5 * time.Millisecond},
		{48000, 48000 / 2, 500 * time.Millisecond},
		{0, 240, 0},
	}

	for _, tt := range tests {
		frame := AudioFrame{Format: FrameFormat{SampleRate: tt.rate}, SamplesCount: tt.samples}
		if got := frame.Duration(); got != tt.want {
			t.Errorf("Duration(%d@%d): got %v, want %v", tt.samples, tt.rate, got, tt.want)
		}
	}
}

func TestMarshalLayout(t *testing.T) {
	frame := AudioFrame{
		Tick:         0x0102030405060708,
		Format:       FrameFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16},
		SamplesCount: 1,
		Audio:        []byte{0xAA, 0xBB, 0xCC, 0xDD},
	}

	data := frame.Marshal()
	if len(data) != HeaderSize+4 {
		t.Fatalf("Marshal size: got %d, want %d", len(data), HeaderSize+4)
	}
	if data[0] != 0x08 || data[7] != 0x01 {
		t.Errorf("Tick must be little-endian, got % x", data[0:8])
	}
	if data[12] != 2 || data[13] != 16 {
		t.Errorf("Channels/BitsPerSample: got %d/%d", data[12], data[13])
	}

	var decoded AudioFrame
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Tick != frame.Tick || decoded.Format != frame.Format || decoded.SamplesCount != frame.SamplesCount {
		t.Errorf("header mismatch: got %+v, want %+v", decoded, frame)
	}
	if !bytes.Equal(decoded.Audio, frame.Audio) {
		t.Errorf("Audio: got %v, want %v", decoded.Audio, frame.Audio)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	truncated := (&AudioFrame{Audio: make([]byte, 8)}).Marshal()

	tests := []struct {
		name string
		data []byte
		err  string
	}{
		{"empty buffer", []byte{}, "buffer too small"},
		{"short header", make([]byte, HeaderSize-1), "buffer too small"},
		{"truncated audio", truncated[:len(truncated)-3], "buffer too small for audio data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame AudioFrame
			err := frame.Unmarshal(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.err) {
				t.Errorf("error: got %q, want it to contain %q", err, tt.err)
			}
		})
	}
}
