package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiorenderer",
	Short: "Audio render pipeline with a simulated DSP",
	Long: `audiorenderer - runs a console-style audio render pipeline on the host.

A dedicated render thread wakes on a fixed timer, asks every renderer
session to submit its command buffer, signals a simulated audio DSP and
waits for it before the next tick. The DSP mixes the sessions and publishes
frames that are played through PortAudio or oto, or recorded to WAV.

Commands:
  - render: Run renderer sessions against the DSP and an output
  - queue-bench: Exercise the bounded concurrent queues`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
