// Package renderer implements guest renderer sessions.
//
// A Session owns a set of voices. Every render tick it pulls one tick worth
// of samples from each voice, turns them into an adsp.CommandBuffer and hands
// the buffer to the DSP. Completion of each buffer is tracked through a host
// syncpoint: the DSP increments it when the buffer is retired, and the
// session registers a threshold action per submitted buffer.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/drgolem/audiorenderer/pkg/adsp"
	"github.com/drgolem/audiorenderer/pkg/syncpoint"
)

// Source produces interleaved 16-bit samples at the render rate and channel
// count. ReadSamples returns the number of values written to dst; io.EOF
// marks the end of the source.
type Source interface {
	ReadSamples(dst []int16) (int, error)
}

// Submitter accepts command buffers for the next render pass.
// *adsp.ADSP implements it.
type Submitter interface {
	SetCommandBuffer(cb adsp.CommandBuffer) bool
}

var (
	ErrNoVoice          = errors.New("renderer: voice not found")
	ErrInvalidSyncpoint = errors.New("renderer: syncpoint id out of range")
)

// Config describes one session.
type Config struct {
	SessionID      uint32
	SyncpointID    uint32  // host syncpoint incremented when a buffer retires
	Channels       int     // must match the DSP
	SamplesPerTick int     // sample frames per tick, must match the DSP
	Volume         float32 // session master volume
}

// DefaultConfig returns a session config matching the DSP layout in dsp.
func DefaultConfig(sessionID uint32, dsp adsp.Config) Config {
	return Config{
		SessionID:      sessionID,
		SyncpointID:    sessionID,
		Channels:       dsp.Channels,
		SamplesPerTick: dsp.SamplesPerTick,
		Volume:         1,
	}
}

// Stats are cumulative buffer counters for a session.
type Stats struct {
	Submitted uint64 // buffers handed to the DSP
	Completed uint64 // buffers the DSP executed (or retired at stop)
	Dropped   uint64 // buffers replaced before the DSP ran them
	Voices    int
}

type voice struct {
	id     int
	src    Source
	volume float32
}

// Session is a renderer session. It satisfies rendersystem.System.
type Session struct {
	cfg        Config
	dsp        Submitter
	syncpoints *syncpoint.Manager
	base       uint32 // syncpoint value when the session was created

	mu        sync.Mutex
	voices    []*voice
	nextVoice int
	volume    float32
	started   bool // first buffer carries a depop ramp
	submitted uint64

	retired atomic.Uint64
	dropped atomic.Uint64
}

// NewSession creates a session that submits to dsp and tracks completion on
// sp. cfg.SyncpointID must be below syncpoint.MaxSyncpoints.
func NewSession(cfg Config, dsp Submitter, sp *syncpoint.Manager) (*Session, error) {
	if cfg.SyncpointID >= syncpoint.MaxSyncpoints {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSyncpoint, cfg.SyncpointID)
	}
	return &Session{
		cfg:        cfg,
		dsp:        dsp,
		syncpoints: sp,
		base:       sp.HostValue(cfg.SyncpointID),
		volume:     cfg.Volume,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() uint32 {
	return s.cfg.SessionID
}

// AddVoice attaches src and returns its voice id.
func (s *Session) AddVoice(src Source, volume float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextVoice++
	s.voices = append(s.voices, &voice{id: s.nextVoice, src: src, volume: volume})
	return s.nextVoice
}

// RemoveVoice detaches a voice and closes its source if it is an io.Closer.
func (s *Session) RemoveVoice(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, v := range s.voices {
		if v.id == id {
			s.voices = append(s.voices[:i], s.voices[i+1:]...)
			closeSource(v.src)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrNoVoice, id)
}

// SetVolume changes the session master volume from the next tick on.
func (s *Session) SetVolume(v float32) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

// Voices returns the number of attached voices.
func (s *Session) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// SendCommandToDsp builds this tick's command buffer and submits it.
// Runs on the render goroutine.
func (s *Session) SendCommandToDsp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cfg.SamplesPerTick * s.cfg.Channels
	cmds := make([]adsp.Command, 0, len(s.voices)+4)
	cmds = append(cmds, adsp.Command{Kind: adsp.CmdClear})

	live := s.voices[:0]
	for _, v := range s.voices {
		samples := make([]int16, n)
		got, err := readFull(v.src, samples)
		if got > 0 {
			cmds = append(cmds, adsp.Command{Kind: adsp.CmdMix, Volume: v.volume, Samples: samples[:got]})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("Voice read failed", "session", s.cfg.SessionID, "voice", v.id, "error", err)
			} else {
				slog.Debug("Voice finished", "session", s.cfg.SessionID, "voice", v.id)
			}
			closeSource(v.src)
			continue
		}
		live = append(live, v)
	}
	clear(s.voices[len(live):])
	s.voices = live

	if !s.started {
		cmds = append(cmds, adsp.Command{Kind: adsp.CmdDepop})
		s.started = true
	}
	if s.volume != 1 {
		cmds = append(cmds, adsp.Command{Kind: adsp.CmdVolume, Volume: s.volume})
	}
	cmds = append(cmds, adsp.Command{Kind: adsp.CmdOutput})

	s.submitted++
	// registered before submitting so the retirement cannot be missed
	s.syncpoints.RegisterHostAction(s.cfg.SyncpointID, s.base+uint32(s.submitted), func() {
		s.retired.Add(1)
	})

	if s.dsp.SetCommandBuffer(adsp.CommandBuffer{
		SessionID:   s.cfg.SessionID,
		SyncpointID: s.cfg.SyncpointID,
		Commands:    cmds,
	}) {
		s.dropped.Add(1)
	}
}

// Drain blocks until every buffer submitted so far has been retired by the
// DSP, or ctx ends.
func (s *Session) Drain(ctx context.Context) error {
	s.mu.Lock()
	target := s.base + uint32(s.submitted)
	s.mu.Unlock()

	if err := s.syncpoints.WaitContext(ctx, syncpoint.Host, s.cfg.SyncpointID, target); err != nil {
		return fmt.Errorf("drain session %d: %w", s.cfg.SessionID, err)
	}
	return nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	submitted := s.submitted
	voices := len(s.voices)
	s.mu.Unlock()

	// dropped first: a buffer is retired before it is counted as dropped
	dropped := s.dropped.Load()
	retired := s.retired.Load()
	return Stats{
		Submitted: submitted,
		Completed: retired - dropped,
		Dropped:   dropped,
		Voices:    voices,
	}
}

// Close detaches and closes every voice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, v := range s.voices {
		if c, ok := v.src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.voices = nil
	return errors.Join(errs...)
}

// readFull reads until dst is full or the source fails.
func readFull(src Source, dst []int16) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := src.ReadSamples(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

func closeSource(src Source) {
	if c, ok := src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close voice source", "error", err)
		}
	}
}
