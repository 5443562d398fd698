// Package ringbuffer stages interleaved PCM bytes between the render pump and
// pull-based output backends (PortAudio callbacks, oto players).
//
// One goroutine writes, one reads. The reader side never blocks: when the
// ring runs dry it pads with silence and counts an underrun.
package ringbuffer

import (
	"sync/atomic"

	"github.com/drgolem/ringbuffer"

	"github.com/drgolem/audiorenderer/pkg/types"
)

var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData
)

// PCMRing wraps a lock-free SPSC byte ring with silence padding and
// underrun accounting for device callbacks.
type PCMRing struct {
	rb *ringbuffer.RingBuffer

	underruns atomic.Uint64
	silence   atomic.Uint64 // bytes of padding handed out
}

// New creates a ring of at least size bytes, rounded up to a power of 2.
func New(size uint64) *PCMRing {
	return &PCMRing{rb: ringbuffer.New(size)}
}

// Write appends all of p or nothing. Producer only.
func (r *PCMRing) Write(p []byte) (int, error) {
	return r.rb.Write(p)
}

// Read copies up to len(p) buffered bytes. It returns ErrInsufficientData
// when the ring is empty. Consumer only.
func (r *PCMRing) Read(p []byte) (int, error) {
	return r.rb.Read(p)
}

// Fill reads into p and zeroes whatever the ring could not supply.
// It always fills p completely and returns the number of real bytes.
// Consumer only.
func (r *PCMRing) Fill(p []byte) int {
	n, _ := r.rb.Read(p)
	if n < len(p) {
		clear(p[n:])
		r.underruns.Add(1)
		r.silence.Add(uint64(len(p) - n))
	}
	return n
}

// Buffered returns the number of readable bytes.
func (r *PCMRing) Buffered() uint64 {
	return r.rb.AvailableRead()
}

// Free returns the number of writable bytes.
func (r *PCMRing) Free() uint64 {
	return r.rb.AvailableWrite()
}

// Size returns the ring capacity in bytes.
func (r *PCMRing) Size() uint64 {
	return r.rb.Size()
}

// Underruns returns how many Fill calls had to pad with silence, and the
// total padding in bytes.
func (r *PCMRing) Underruns() (count, bytes uint64) {
	return r.underruns.Load(), r.silence.Load()
}

// Reset drops buffered data and clears the counters. Neither side may be
// active.
func (r *PCMRing) Reset() {
	r.rb.Reset()
	r.underruns.Store(0)
	r.silence.Store(0)
}
