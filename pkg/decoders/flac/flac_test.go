package flac

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestGetFormatBeforeOpen(t *testing.T) {
	decoder := NewDecoder()

	rate, channels, bps := decoder.GetFormat()
	if rate != 0 || channels != 0 || bps != 0 {
		t.Errorf("GetFormat before Open: got (%d, %d, %d), want zeros", rate, channels, bps)
	}
}

func TestDecoderClose(t *testing.T) {
	decoder := NewDecoder()

	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder: %v", err)
	}
	if err := decoder.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDecodeSamplesWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	buffer := make([]byte, 1024)
	if _, err := decoder.DecodeSamples(256, buffer); err == nil {
		t.Error("DecodeSamples without Open: got nil error")
	}
}

func TestOpenMissingFile(t *testing.T) {
	decoder := NewDecoder()
	defer decoder.Close()

	err := decoder.Open(filepath.Join(t.TempDir(), "missing.flac"))
	if err == nil {
		t.Fatal("Open missing file: got nil error")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("Open error should wrap the cause: %v", err)
	}
}
