package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drgolem/audiorenderer/pkg/boundedqueue"
)

var (
	benchCapacity  int
	benchItems     int
	benchProducers int
	benchConsumers int
)

var queueBenchCmd = &cobra.Command{
	Use:   "queue-bench",
	Short: "Measure bounded queue throughput",
	Long: `Pushes --items integers through a bounded queue from --producers
goroutines and pops them from --consumers goroutines, then checks that every
value arrived exactly once.

One consumer uses the MPSC queue, more than one the MPMC queue.

Examples:
  audiorenderer queue-bench --capacity 1024 --items 1000000 --producers 4
  audiorenderer queue-bench --producers 4 --consumers 4`,
	Args: cobra.NoArgs,
	RunE: runQueueBench,
}

func init() {
	rootCmd.AddCommand(queueBenchCmd)

	queueBenchCmd.Flags().IntVar(&benchCapacity, "capacity", boundedqueue.DefaultCapacity, "Queue capacity (power of 2)")
	queueBenchCmd.Flags().IntVar(&benchItems, "items", 1_000_000, "Total items to transfer")
	queueBenchCmd.Flags().IntVar(&benchProducers, "producers", 2, "Producer goroutines")
	queueBenchCmd.Flags().IntVar(&benchConsumers, "consumers", 1, "Consumer goroutines")
}

func runQueueBench(cmd *cobra.Command, args []string) error {
	if benchCapacity <= 0 || benchCapacity&(benchCapacity-1) != 0 {
		return fmt.Errorf("--capacity must be a power of 2, got %d", benchCapacity)
	}
	if benchProducers < 1 || benchConsumers < 1 || benchItems < 1 {
		return fmt.Errorf("--producers, --consumers and --items must be positive")
	}

	var q boundedqueue.Queue[int]
	kind := "mpsc"
	if benchConsumers == 1 {
		q = boundedqueue.NewMPSC[int](benchCapacity)
	} else {
		q = boundedqueue.NewMPMC[int](benchCapacity)
		kind = "mpmc"
	}

	slog.Info("Queue benchmark",
		"queue", kind,
		"capacity", benchCapacity,
		"items", benchItems,
		"producers", benchProducers,
		"consumers", benchConsumers)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var received atomic.Int64
	var sum atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < benchProducers; p++ {
		g.Go(func() error {
			for v := p; v < benchItems; v += benchProducers {
				q.PushWait(v)
			}
			return nil
		})
	}
	for c := 0; c < benchConsumers; c++ {
		g.Go(func() error {
			for {
				v, ok := q.PopWaitContext(gctx)
				if !ok {
					return nil
				}
				sum.Add(int64(v))
				if received.Add(1) == int64(benchItems) {
					cancel()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	n := int64(benchItems)
	if want := n * (n - 1) / 2; received.Load() != n || sum.Load() != want {
		return fmt.Errorf("queue lost data: received %d of %d, checksum %d, want %d",
			received.Load(), n, sum.Load(), want)
	}

	slog.Info("Queue benchmark finished",
		"elapsed", elapsed,
		"items_per_sec", fmt.Sprintf("%.0f", float64(n)/elapsed.Seconds()),
		"ns_per_item", elapsed.Nanoseconds()/n)
	return nil
}
