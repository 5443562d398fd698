package boundedqueue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMPSCManyProducers(t *testing.T) {
	const (
		producers = 4
		perWorker = 2500
	)
	q := NewMPSC[int](32)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.PushWait(p*perWorker + i)
			}
		}(p)
	}

	// per-producer order must survive interleaving
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for n := 0; n < producers*perWorker; n++ {
		v := q.PopWait()
		p := v / perWorker
		require.Greater(t, v, last[p], "producer %d out of order", p)
		last[p] = v
	}
	wg.Wait()
	require.True(t, q.Empty())
}

func TestMPMCDeliversEveryValueOnce(t *testing.T) {
	const (
		producers = 3
		consumers = 3
		perWorker = 2000
	)
	q := NewMPMC[int](16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var prodWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		prodWG.Add(1)
		go func(p int) {
			defer prodWG.Done()
			for i := 0; i < perWorker; i++ {
				q.PushWait(p*perWorker + i)
			}
		}(p)
	}

	results := make(chan int, producers*perWorker)
	var consWG sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consWG.Add(1)
		go func() {
			defer consWG.Done()
			for {
				v, ok := q.PopWaitContext(ctx)
				if !ok {
					return
				}
				results <- v
			}
		}()
	}

	prodWG.Wait()
	require.Eventually(t, func() bool { return len(results) == producers*perWorker },
		5*time.Second, time.Millisecond)
	cancel()
	consWG.Wait()
	close(results)

	got := make([]int, 0, producers*perWorker)
	for v := range results {
		got = append(got, v)
	}
	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestMPMCTryPolicies(t *testing.T) {
	q := NewMPMC[int](2)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.False(t, q.TryPush(3))
	require.Equal(t, 2, q.Size())

	q.PushOverwrite(3)
	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	q.Clear()
	require.True(t, q.Empty())
	_, ok = q.TryPop()
	require.False(t, ok)
	require.Equal(t, 2, q.Cap())
}

type overwriter interface {
	PushOverwrite(int)
	TryPop() (int, bool)
	Size() int
	Cap() int
}

func TestOverwriteManyProducers(t *testing.T) {
	const (
		producers = 4
		perWorker = 5000
	)
	queues := map[string]overwriter{
		"MPSC": NewMPSC[int](16),
		"MPMC": NewMPMC[int](16),
	}
	for name, q := range queues {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						q.PushOverwrite(p*perWorker + i)
					}
				}(p)
			}
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			last := make([]int, producers)
			for i := range last {
				last[i] = -1
			}
			check := func(v int) {
				p := v / perWorker
				require.Greater(t, v, last[p], "producer %d out of order", p)
				last[p] = v
			}

			for running := true; running; {
				select {
				case <-done:
					running = false
				default:
				}
				require.LessOrEqual(t, q.Size(), q.Cap())
				if v, ok := q.TryPop(); ok {
					check(v)
				}
			}
			require.LessOrEqual(t, q.Size(), q.Cap())
			for {
				v, ok := q.TryPop()
				if !ok {
					break
				}
				check(v)
			}
		})
	}
}

func TestMPMCSizeDoesNotWaitForConsumer(t *testing.T) {
	q := NewMPMC[int](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	popped := make(chan bool)
	go func() {
		_, ok := q.PopWaitContext(ctx)
		popped <- ok
	}()
	time.Sleep(10 * time.Millisecond) // let the consumer block holding the read mutex

	sized := make(chan struct{})
	go func() {
		_ = q.Size()
		_ = q.Empty()
		close(sized)
	}()
	select {
	case <-sized:
	case <-time.After(time.Second):
		t.Fatal("Size/Empty blocked behind a waiting consumer")
	}

	cancel()
	require.False(t, <-popped)
}
