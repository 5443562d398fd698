package wav

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/youpy/go-wav"
)

func TestTo16(t *testing.T) {
	tests := []struct {
		name string
		v    int
		bits int
		want int16
	}{
		{"8-bit silence", 128, 8, 0},
		{"8-bit max", 255, 8, 127 << 8},
		{"8-bit min", 0, 8, -128 << 8},
		{"16-bit passthrough", -1234, 16, -1234},
		{"24-bit", 0x123456, 24, 0x1234},
		{"24-bit negative", -0x100000, 24, -0x1000},
		{"32-bit", 0x7fff0000, 32, 0x7fff},
	}
	for _, tt := range tests {
		if got := to16(tt.v, tt.bits); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDecode8Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u8.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := wav.NewWriter(f, 3, 1, 8000, 8)
	if _, err := w.Write([]byte{128, 255, 0}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	d := NewDecoder()
	if err := d.Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if rate, ch, bps := d.GetFormat(); rate != 8000 || ch != 1 || bps != 16 {
		t.Errorf("GetFormat: got (%d, %d, %d), want (8000, 1, 16)", rate, ch, bps)
	}
	if d.SourceBitsPerSample() != 8 {
		t.Errorf("SourceBitsPerSample: got %d, want 8", d.SourceBitsPerSample())
	}

	buf := make([]byte, 16)
	n, err := d.DecodeSamples(8, buf)
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	if n != 3 {
		t.Fatalf("DecodeSamples: got %d frames, want 3", n)
	}
	want := []int16{0, 127 << 8, -128 << 8}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(buf[i*2:])); got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}

	if _, err := d.DecodeSamples(8, buf); !errors.Is(err, io.EOF) {
		t.Errorf("DecodeSamples at end: got %v, want io.EOF", err)
	}
}

func TestDecodeWithoutOpen(t *testing.T) {
	d := NewDecoder()
	if _, err := d.DecodeSamples(1, make([]byte, 4)); err == nil {
		t.Error("DecodeSamples without Open: got nil error")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close without Open: %v", err)
	}
}
