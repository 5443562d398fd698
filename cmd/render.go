package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drgolem/audiorenderer/pkg/adsp"
	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/audioout"
	"github.com/drgolem/audiorenderer/pkg/coretiming"
	"github.com/drgolem/audiorenderer/pkg/decoders"
	"github.com/drgolem/audiorenderer/pkg/rendersystem"
	"github.com/drgolem/audiorenderer/pkg/renderer"
	"github.com/drgolem/audiorenderer/pkg/syncpoint"
	"github.com/drgolem/audiorenderer/pkg/types"
)

var (
	sessionCount int
	duration     time.Duration
	outKind      string
	outFile      string
	voiceFiles   []string
	toneHz       float64
	volume       float32
	deviceIdx    int
	frames       int
	bufferSize   uint64
	timerStep    time.Duration
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Run renderer sessions against the simulated DSP",
	Long: `Starts the audio render system, registers renderer sessions and plays
the mixed DSP output.

Each session gets one voice: the next file from --voice if any are left,
otherwise a sine tone (session N plays --tone * (N+1) Hz). At most two
sessions can be registered at once; extra sessions are rejected.

Examples:
  # Two tone sessions to the default PortAudio device for 5 seconds
  audiorenderer render --sessions 2 --duration 5s

  # Mix a FLAC file with a tone and record the result
  audiorenderer render --voice music.flac --sessions 2 --out wav --file mix.wav --duration 10s

  # Use oto instead of PortAudio
  audiorenderer render --out oto --voice speech.ogg

Outputs:
  portaudio: PortAudio callback stream (--device, --frames, --buffer)
  oto:       ebitengine/oto player (--buffer)
  wav:       16-bit WAV file written on exit (--file)
  null:      discard, useful with -v to watch the render loop`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().IntVarP(&sessionCount, "sessions", "n", 1, "Number of renderer sessions")
	renderCmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	renderCmd.Flags().StringVarP(&outKind, "out", "o", "portaudio", "Output: portaudio, oto, wav or null")
	renderCmd.Flags().StringVar(&outFile, "file", "render.wav", "Output file for --out wav")
	renderCmd.Flags().StringSliceVar(&voiceFiles, "voice", nil, "Audio files to use as voices (MP3, FLAC, Ogg, WAV)")
	renderCmd.Flags().Float64Var(&toneHz, "tone", 440, "Base tone frequency for sessions without a file")
	renderCmd.Flags().Float32Var(&volume, "volume", 0.5, "Session volume")
	renderCmd.Flags().IntVarP(&deviceIdx, "device", "d", 1, "PortAudio output device index")
	renderCmd.Flags().IntVarP(&frames, "frames", "f", 512, "PortAudio frames per buffer")
	renderCmd.Flags().Uint64VarP(&bufferSize, "buffer", "b", 64*1024, "Output staging buffer in bytes (power of 2)")
	renderCmd.Flags().DurationVar(&timerStep, "timer-step", time.Millisecond, "Host clock granularity driving the render timer")
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := checkSessionCount(sessionCount); err != nil {
		return err
	}

	syncpoints := syncpoint.NewManager()
	dspCfg := adsp.DefaultConfig()
	dsp := adsp.New(dspCfg, syncpoints)
	format := audioframe.FrameFormat{
		SampleRate:    uint32(dspCfg.SampleRate),
		Channels:      uint8(dspCfg.Channels),
		BitsPerSample: 16,
	}

	sink, cleanup, err := openSink(format)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	timing := coretiming.New()
	manager := rendersystem.New(dsp, timing)
	pump := audioout.NewPump(dsp.Output(), sink)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(timing.Run(gctx, timerStep))
	})
	g.Go(func() error {
		return pump.Run(gctx)
	})
	g.Go(func() error {
		monitorRender(gctx, pump, manager, 2*time.Second)
		return nil
	})

	sessions := make([]*renderer.Session, 0, sessionCount)
	for i := 0; i < sessionCount; i++ {
		s, err := newSession(uint32(i), dspCfg, dsp, syncpoints)
		if err != nil {
			slog.Error("Failed to create session", "session", i, "error", err)
			continue
		}
		if err := manager.Add(s); err != nil {
			rejectSession(s, err)
			continue
		}
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		stop()
		g.Wait()
		return fmt.Errorf("no renderer session could be started")
	}

	slog.Info("Rendering",
		"sessions", len(sessions),
		"output", sink.Name(),
		"sample_rate", dspCfg.SampleRate,
		"period", rendersystem.RenderTimeSlice)

	<-gctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Info("Duration reached")
	} else if ctx.Err() != nil {
		slog.Info("Signal received, stopping")
	}

	shutdownSessions(manager, sessions)

	if err := g.Wait(); err != nil {
		slog.Error("Render pipeline failed", "error", err)
		return err
	}

	st := pump.Status()
	ds := dsp.Stats()
	slog.Info("Render finished",
		"dsp_ticks", ds.Ticks,
		"buffers_executed", ds.BuffersExecuted,
		"buffers_superseded", ds.BuffersSuperseded,
		"frames_output", st.FramesRendered,
		"frames_overwritten", pump.Skipped(),
		"underruns", st.Underruns)
	return nil
}

func newSession(id uint32, dspCfg adsp.Config, dsp *adsp.ADSP, sp *syncpoint.Manager) (*renderer.Session, error) {
	cfg := renderer.DefaultConfig(id, dspCfg)
	cfg.Volume = volume
	s, err := renderer.NewSession(cfg, dsp, sp)
	if err != nil {
		return nil, err
	}

	if int(id) < len(voiceFiles) {
		src, err := decoders.NewSource(voiceFiles[id], dspCfg.SampleRate, dspCfg.Channels)
		if err != nil {
			return nil, err
		}
		s.AddVoice(src, 1)
		slog.Info("Session voice", "session", id, "file", src.Name())
		return s, nil
	}

	hz := toneHz * float64(id+1)
	s.AddVoice(renderer.NewTone(hz, dspCfg.SampleRate, dspCfg.Channels, 0.5), 1)
	slog.Info("Session voice", "session", id, "tone_hz", hz)
	return s, nil
}

// checkSessionCount bounds --sessions. Each session owns one host syncpoint,
// so there can be at most syncpoint.MaxSyncpoints of them.
func checkSessionCount(n int) error {
	if n < 1 {
		return fmt.Errorf("--sessions must be at least 1")
	}
	if n > syncpoint.MaxSyncpoints {
		return fmt.Errorf("--sessions must be at most %d, got %d", syncpoint.MaxSyncpoints, n)
	}
	return nil
}

// rejectSession logs a session the render system refused and releases its
// voices.
func rejectSession(s *renderer.Session, reason error) {
	slog.Error("Session rejected", "session", s.ID(), "error", reason)
	if err := s.Close(); err != nil {
		slog.Warn("Failed to close session voices", "session", s.ID(), "error", err)
	}
}

// shutdownSessions removes every session from the render loop, waits for
// their outstanding buffers and releases their voices.
func shutdownSessions(manager *rendersystem.SystemManager, sessions []*renderer.Session) {
	for _, s := range sessions {
		if err := manager.Remove(s); err != nil {
			slog.Warn("Failed to remove session", "session", s.ID(), "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, s := range sessions {
		if err := s.Drain(ctx); err != nil {
			slog.Warn("Session did not drain", "session", s.ID(), "error", err)
		}
		st := s.Stats()
		slog.Info("Session stats",
			"session", s.ID(),
			"submitted", st.Submitted,
			"completed", st.Completed,
			"dropped", st.Dropped)
		if err := s.Close(); err != nil {
			slog.Warn("Failed to close session voices", "session", s.ID(), "error", err)
		}
	}
}

// openSink creates the output selected by --out. cleanup closes it and
// tears down whatever library state it needed.
func openSink(format audioframe.FrameFormat) (audioout.Sink, func(), error) {
	switch outKind {
	case "portaudio":
		slog.Info("Initializing PortAudio")
		if err := portaudio.Initialize(); err != nil {
			slog.Error("Hint: Make sure PortAudio is installed on your system")
			return nil, nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

		sink, err := audioout.NewPortAudioSink(audioout.PortAudioConfig{
			DeviceIndex:     deviceIdx,
			FramesPerBuffer: frames,
			BufferSize:      bufferSize,
		}, format)
		if err != nil {
			portaudio.Terminate()
			return nil, nil, err
		}
		return sink, func() {
			closeSink(sink)
			portaudio.Terminate()
		}, nil

	case "oto":
		sink, err := audioout.NewOtoSink(audioout.OtoConfig{BufferSize: bufferSize}, format)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { closeSink(sink) }, nil

	case "wav":
		sink := audioout.NewWAVSink(outFile, format)
		return sink, func() {
			closeSink(sink)
			slog.Info("Output written", "path", outFile)
		}, nil

	case "null":
		sink := audioout.NewNullSink(format)
		return sink, func() { closeSink(sink) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown output %q (supported: portaudio, oto, wav, null)", outKind)
	}
}

func closeSink(sink audioout.Sink) {
	if err := sink.Close(); err != nil {
		slog.Error("Failed to close output", "output", sink.Name(), "error", err)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// monitorRender logs render status every interval until ctx is done.
func monitorRender(ctx context.Context, monitor types.StatusMonitor, manager *rendersystem.SystemManager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.Status()
			loop := manager.Stats()

			playedTime := time.Duration(0)
			bufferedTime := time.Duration(0)
			if status.SampleRate > 0 {
				playedTime = time.Duration(status.PlayedSamples) * time.Second / time.Duration(status.SampleRate)
				bufferedTime = time.Duration(status.BufferedSamples) * time.Second / time.Duration(status.SampleRate)
			}

			slog.Info("Render status",
				"output", status.Output,
				"format", fmt.Sprintf("%dHz:16bit:%dch", status.SampleRate, status.Channels),
				"played", formatClock(playedTime),
				"buffered", fmt.Sprintf("%.3fs", bufferedTime.Seconds()),
				"elapsed", formatClock(status.ElapsedTime),
				"ticks", loop.Ticks,
				"overruns", loop.Overruns,
				"max_tick", loop.MaxTickDuration,
				"underruns", status.Underruns)
		case <-ctx.Done():
			return
		}
	}
}

// formatClock formats d as hh:mm:ss.msec.
func formatClock(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms%3600000)/60000, (ms%60000)/1000, ms%1000)
}
