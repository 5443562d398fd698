package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drgolem/audiorenderer/pkg/audioframe"
	"github.com/drgolem/audiorenderer/pkg/boundedqueue"
)

func main() {
	fmt.Println("Bounded Queue - Producer/Consumer Example")
	fmt.Println("=========================================")
	fmt.Println()

	blocking()
	fmt.Println()
	overwriting()
}

// blocking hands every frame over: the producer waits when the queue is full.
func blocking() {
	q := boundedqueue.NewSPSC[audioframe.AudioFrame](64)
	fmt.Printf("[blocking] queue capacity=%d frames\n", q.Cap())

	const totalFrames = 1000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		samples := make([]int16, 240*2)
		for i := 0; i < totalFrames; i++ {
			samples[0] = int16(i)
			q.PushWait(audioframe.FromInt16(uint64(i), 48000, 2, samples))
			if (i+1)%250 == 0 {
				fmt.Printf("[Producer] Produced %d frames (queued: %d)\n", i+1, q.Size())
			}
		}
	}()

	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond) // let the producer fill the queue

		mismatches := 0
		for i := 0; i < totalFrames; i++ {
			frame := q.PopWait()
			if frame.Tick != uint64(i) || frame.Int16(nil)[0] != int16(i) {
				mismatches++
			}
			time.Sleep(20 * time.Microsecond)
		}
		fmt.Printf("[Consumer] Consumed %d frames, %d out of order\n", totalFrames, mismatches)
	}()

	wg.Wait()
}

// overwriting never blocks the producer; a slow consumer only ever sees the
// newest frames.
func overwriting() {
	q := boundedqueue.NewSPSC[audioframe.AudioFrame](8)
	fmt.Printf("[overwrite] queue capacity=%d frames\n", q.Cap())

	for i := 0; i < 100; i++ {
		q.PushOverwrite(audioframe.FromInt16(uint64(i), 48000, 2, make([]int16, 4)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for {
		frame, ok := q.PopWaitContext(ctx)
		if !ok {
			break
		}
		fmt.Printf("[overwrite] tick %d\n", frame.Tick)
	}
	fmt.Println("[overwrite] ticks 0..91 were dropped")
}
