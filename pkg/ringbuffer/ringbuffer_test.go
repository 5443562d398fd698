package ringbuffer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestNewRoundsUp(t *testing.T) {
	tests := []struct {
		size uint64
		want uint64
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{1000, 1024},
		{4096, 4096},
	}
	for _, tt := range tests {
		if got := New(tt.size).Size(); got != tt.want {
			t.Errorf("New(%d).Size(): got %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestWriteAllOrNothing(t *testing.T) {
	r := New(8)
	if _, err := r.Write(make([]byte, 6)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	n, err := r.Write(make([]byte, 3))
	if !errors.Is(err, ErrInsufficientSpace) || n != 0 {
		t.Errorf("Write over capacity: got (%d, %v), want (0, ErrInsufficientSpace)", n, err)
	}
	if r.Buffered() != 6 {
		t.Errorf("Buffered: got %d, want 6", r.Buffered())
	}
}

func TestReadWraps(t *testing.T) {
	r := New(8)
	buf := make([]byte, 8)

	r.Write([]byte{1, 2, 3, 4, 5, 6})
	r.Read(buf[:5])
	r.Write([]byte{7, 8, 9, 10, 11})

	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := []byte{6, 7, 8, 9, 10, 11}; !bytes.Equal(buf[:n], want) {
		t.Errorf("Read: got %v, want %v", buf[:n], want)
	}

	if _, err := r.Read(buf); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Read empty: got %v, want ErrInsufficientData", err)
	}
}

func TestFillPadsSilence(t *testing.T) {
	r := New(16)
	r.Write([]byte{9, 9, 9})

	out := []byte{1, 1, 1, 1, 1, 1}
	if n := r.Fill(out); n != 3 {
		t.Errorf("Fill: got %d real bytes, want 3", n)
	}
	if want := []byte{9, 9, 9, 0, 0, 0}; !bytes.Equal(out, want) {
		t.Errorf("Fill: got %v, want %v", out, want)
	}

	count, padded := r.Underruns()
	if count != 1 || padded != 3 {
		t.Errorf("Underruns: got (%d, %d), want (1, 3)", count, padded)
	}

	r.Write([]byte{1, 2})
	r.Fill(out[:2])
	if count, _ := r.Underruns(); count != 1 {
		t.Errorf("full Fill counted as underrun: got %d, want 1", count)
	}
}

func TestConcurrentStream(t *testing.T) {
	r := New(64)
	const total = 1 << 16

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]byte, 7)
		for sent := 0; sent < total; {
			n := min(len(chunk), total-sent)
			for i := range chunk[:n] {
				chunk[i] = byte(sent + i)
			}
			if _, err := r.Write(chunk[:n]); err == nil {
				sent += n
			}
		}
	}()

	buf := make([]byte, 5)
	for got := 0; got < total; {
		n, _ := r.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] != byte(got+i) {
				t.Fatalf("byte %d: got %d, want %d", got+i, buf[i], byte(got+i))
			}
		}
		got += n
	}
	wg.Wait()
}

func TestResetClearsDataAndCounters(t *testing.T) {
	r := New(8)
	r.Write([]byte{1, 2, 3})
	r.Fill(make([]byte, 4))
	r.Write([]byte{4, 5})

	r.Reset()

	if r.Buffered() != 0 || r.Free() != 8 {
		t.Errorf("after Reset: got buffered=%d free=%d, want 0 and 8", r.Buffered(), r.Free())
	}
	if count, padded := r.Underruns(); count != 0 || padded != 0 {
		t.Errorf("Underruns after Reset: got (%d, %d), want (0, 0)", count, padded)
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Read after Reset: got %v, want ErrInsufficientData", err)
	}
}
