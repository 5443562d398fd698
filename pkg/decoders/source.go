package decoders

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	soxr "github.com/zaf/resample"

	"github.com/drgolem/audiorenderer/pkg/types"
)

// decodeChunk is how many frames are pulled from the decoder at a time.
const decodeChunk = 1024

// Source turns a decoder into a voice: interleaved int16 samples at a fixed
// rate and channel count. Decoded audio at a different rate goes through
// SoXR; channel counts are mapped by duplicating mono or keeping the first
// two channels.
type Source struct {
	name        string
	decoder     types.AudioDecoder
	inRate      int
	inChannels  int
	outChannels int

	resampler *soxr.Resampler
	pending   bytes.Buffer // 16-bit PCM at the output rate, input channel layout
	raw       []byte

	eof bool
	err error
}

// NewSource opens fileName and prepares it to be read at rate Hz with
// channels channels.
func NewSource(fileName string, rate, channels int) (*Source, error) {
	decoder, err := NewDecoder(fileName)
	if err != nil {
		return nil, err
	}
	src, err := FromDecoder(decoder, rate, channels)
	if err != nil {
		decoder.Close()
		return nil, err
	}
	src.name = filepath.Base(fileName)
	return src, nil
}

// FromDecoder wraps an opened 16-bit decoder. The Source owns it afterwards.
func FromDecoder(decoder types.AudioDecoder, rate, channels int) (*Source, error) {
	inRate, inChannels, bps := decoder.GetFormat()
	if bps != 16 {
		return nil, fmt.Errorf("unsupported decoder output: %d bits per sample", bps)
	}
	if inChannels < 1 || channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel mapping: %d -> %d", inChannels, channels)
	}

	s := &Source{
		decoder:     decoder,
		inRate:      inRate,
		inChannels:  inChannels,
		outChannels: channels,
		raw:         make([]byte, decodeChunk*inChannels*2),
	}

	if inRate != rate {
		r, err := soxr.New(&s.pending, float64(inRate), float64(rate), inChannels, soxr.I16, soxr.HighQ)
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		s.resampler = r
		slog.Debug("Resampling voice source", "from", inRate, "to", rate, "channels", inChannels)
	}
	return s, nil
}

// Name returns the base name of the file, if any.
func (s *Source) Name() string {
	return s.name
}

// ReadSamples fills dst with interleaved samples. It returns io.EOF once
// the file and the resampler are drained. dst shorter than one frame yields
// io.ErrShortBuffer.
func (s *Source) ReadSamples(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	inFrameBytes := s.inChannels * 2
	want := len(dst) / s.outChannels
	if want == 0 {
		return 0, io.ErrShortBuffer
	}

	for s.pending.Len()/inFrameBytes < want && !s.eof {
		s.decodeMore()
	}

	frames := min(want, s.pending.Len()/inFrameBytes)
	if frames == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}

	in := s.pending.Next(frames * inFrameBytes)
	for f := 0; f < frames; f++ {
		l := int16(binary.LittleEndian.Uint16(in[f*inFrameBytes:]))
		r := l
		if s.inChannels > 1 {
			r = int16(binary.LittleEndian.Uint16(in[f*inFrameBytes+2:]))
		}
		if s.outChannels == 1 {
			dst[f] = int16((int32(l) + int32(r)) / 2)
			continue
		}
		dst[2*f] = l
		dst[2*f+1] = r
	}
	return frames * s.outChannels, nil
}

func (s *Source) decodeMore() {
	if s.decoder == nil {
		s.finish(nil)
		return
	}
	n, err := s.decoder.DecodeSamples(decodeChunk, s.raw)
	if n > 0 {
		chunk := s.raw[:n*s.inChannels*2]
		if s.resampler != nil {
			if _, werr := s.resampler.Write(chunk); werr != nil {
				s.finish(fmt.Errorf("resample: %w", werr))
				return
			}
		} else {
			s.pending.Write(chunk)
		}
	}
	if err != nil || n == 0 {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		s.finish(err)
	}
}

// finish flushes the resampler tail and marks the decoder exhausted.
func (s *Source) finish(err error) {
	s.eof = true
	s.err = err
	if s.resampler != nil {
		if cerr := s.resampler.Close(); cerr != nil && s.err == nil {
			s.err = fmt.Errorf("flush resampler: %w", cerr)
		}
		s.resampler = nil
	}
}

// Close releases the decoder.
func (s *Source) Close() error {
	if s.resampler != nil {
		s.resampler.Close()
		s.resampler = nil
	}
	if s.decoder == nil {
		return nil
	}
	err := s.decoder.Close()
	s.decoder = nil
	return err
}
