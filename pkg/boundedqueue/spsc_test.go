package boundedqueue

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOf2(t *testing.T) {
	tests := []struct {
		capacity  int
		wantPanic bool
	}{
		{-4, true},
		{0, true},
		{1, false},
		{2, false},
		{3, true},
		{100, true},
		{1024, false},
		{DefaultCapacity, false},
	}

	for _, tt := range tests {
		fn := func() { NewSPSC[int](tt.capacity) }
		if tt.wantPanic {
			assert.Panics(t, fn, "capacity %d", tt.capacity)
		} else {
			assert.NotPanics(t, fn, "capacity %d", tt.capacity)
		}
	}
}

func TestTryPushTryPopScenario(t *testing.T) {
	q := NewSPSC[string](4)

	for _, v := range []string{"A", "B", "C", "D"} {
		if !q.TryPush(v) {
			t.Fatalf("TryPush(%s): queue reported full", v)
		}
	}
	if q.TryPush("E") {
		t.Fatal("TryPush(E): want failure on full queue")
	}
	if q.Size() != 4 {
		t.Errorf("Size: got %d, want 4", q.Size())
	}

	v, ok := q.TryPop()
	if !ok || v != "A" {
		t.Fatalf("TryPop: got %q/%v, want A/true", v, ok)
	}
	if !q.TryPush("E") {
		t.Fatal("TryPush(E): want success after a pop")
	}

	for _, want := range []string{"B", "C", "D", "E"} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Errorf("TryPop: got %q/%v, want %q/true", got, ok, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue: want failure")
	}
	if !q.Empty() {
		t.Error("Empty: want true")
	}
}

func TestPushOverwriteKeepsNewest(t *testing.T) {
	tests := []struct {
		capacity int
		extra    int
	}{
		{1, 1},
		{4, 1},
		{4, 3},
		{8, 17},
	}

	for _, tt := range tests {
		q := NewSPSC[int](tt.capacity)
		total := tt.capacity + tt.extra
		for i := 0; i < total; i++ {
			q.PushOverwrite(i)
		}

		if q.Size() != tt.capacity {
			t.Errorf("cap=%d extra=%d: Size got %d, want %d", tt.capacity, tt.extra, q.Size(), tt.capacity)
		}
		for want := tt.extra; want < total; want++ {
			got, ok := q.TryPop()
			if !ok || got != want {
				t.Errorf("cap=%d extra=%d: TryPop got %d/%v, want %d", tt.capacity, tt.extra, got, ok, want)
			}
		}
		if !q.Empty() {
			t.Errorf("cap=%d extra=%d: queue not empty after draining", tt.capacity, tt.extra)
		}
	}
}

func TestPopReleasesSlot(t *testing.T) {
	q := NewSPSC[*int](2)
	v := 42
	q.PushWait(&v)
	got := q.PopWait()
	require.Same(t, &v, got)
	assert.Nil(t, q.data[0], "popped slot must be zeroed")
}

func TestWrapAround(t *testing.T) {
	q := NewSPSC[int](4)
	next := 0
	want := 0

	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			require.True(t, q.TryPush(next))
			next++
		}
		for i := 0; i < 3; i++ {
			got, ok := q.TryPop()
			require.True(t, ok)
			require.Equal(t, want, got)
			want++
		}
	}
}

func TestPushWaitBlocksUntilPop(t *testing.T) {
	q := NewSPSC[int](1)
	q.PushWait(1)

	pushed := make(chan struct{})
	go func() {
		q.PushWait(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("PushWait returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	require.Equal(t, 1, q.PopWait())
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("PushWait did not wake after a pop")
	}
	require.Equal(t, 2, q.PopWait())
}

func TestPopWaitContextCancel(t *testing.T) {
	q := NewSPSC[int](4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.PopWaitContext(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok, "PopWaitContext must report cancellation")
	case <-time.After(time.Second):
		t.Fatal("PopWaitContext did not return after cancel")
	}
}

func TestPopWaitContextReceives(t *testing.T) {
	q := NewSPSC[int](4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.PushWait(7)
	}()

	v, ok := q.PopWaitContext(ctx)
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestPopWaitContextPrefersData(t *testing.T) {
	q := NewSPSC[int](4)
	q.PushWait(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, ok := q.PopWaitContext(ctx)
	require.True(t, ok, "queued data is returned even after cancellation")
	require.Equal(t, 3, v)
}

func TestSPSCConcurrentFIFO(t *testing.T) {
	const items = 20000
	q := NewSPSC[int](64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < items; i++ {
			if i%2 == 0 {
				q.PushWait(i)
				continue
			}
			for !q.TryPush(i) {
				runtime.Gosched()
			}
		}
	}()

	for want := 0; want < items; want++ {
		if size := q.Size(); size > q.Cap() {
			t.Fatalf("Size %d exceeds capacity %d", size, q.Cap())
		}
		got := q.PopWait()
		if got != want {
			t.Fatalf("PopWait: got %d, want %d", got, want)
		}
	}
	wg.Wait()
}

func TestOverwriteConcurrentWithPop(t *testing.T) {
	const items = 10000
	q := NewSPSC[int](8)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < items; i++ {
			q.PushOverwrite(i)
		}
		cancel()
	}()

	last := -1
	for {
		v, ok := q.PopWaitContext(ctx)
		if !ok {
			break
		}
		require.Greater(t, v, last, "values must stay in push order")
		last = v
	}
	wg.Wait()

	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		require.Greater(t, v, last)
		last = v
	}
	assert.Equal(t, items-1, last, "newest value is never dropped")
}
