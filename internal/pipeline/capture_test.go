package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skywatch/internal/source"
	"skywatch/internal/stats"
)

func TestCaptureStampsMonotonicSequence(t *testing.T) {
	src := source.NewSynthetic(32, 24, 5)
	queue := NewFrameQueue(10)
	bus := NewEventBus()
	st := stats.NewStream(30)

	w := NewCaptureWorker(src, queue, bus, st)
	w.Start()
	defer w.Stop()

	var last uint64
	for i := 0; i < 5; i++ {
		f, ok := queue.Pop(time.Second)
		require.True(t, ok)
		require.Equal(t, last+1, f.Seq)
		last = f.Seq
	}
	require.Equal(t, uint64(5), w.FramesCaptured())
}

func TestCaptureClosesQueueWhenSourceEnds(t *testing.T) {
	src := source.NewSynthetic(32, 24, 3)
	queue := NewFrameQueue(10)
	bus := NewEventBus()

	var mu sync.Mutex
	var kinds []LifecycleKind
	unsub := bus.SubscribeLifecycle(func(ev LifecycleEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	defer unsub()

	w := NewCaptureWorker(src, queue, bus, stats.NewStream(30))
	w.Start()

	require.Eventually(t, func() bool { return queue.Closed() }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !w.Running() }, time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Contains(t, kinds, LifecycleStopped)
	mu.Unlock()
}

func TestCaptureStopIsIdempotent(t *testing.T) {
	src := source.NewSynthetic(32, 24, 0)
	src.Interval = 5 * time.Millisecond
	w := NewCaptureWorker(src, NewFrameQueue(1), NewEventBus(), stats.NewStream(30))

	w.Start()
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	require.NotPanics(t, w.Stop)
	require.False(t, w.Running())
}

func TestCaptureNeverBlocksOnSlowConsumer(t *testing.T) {
	src := source.NewSynthetic(32, 24, 200)
	queue := NewFrameQueue(1)
	st := stats.NewStream(30)

	w := NewCaptureWorker(src, queue, NewEventBus(), st)
	w.Start()

	// No consumer at all; capture must still drain the whole source
	require.Eventually(t, func() bool { return !w.Running() }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, uint64(200), w.FramesCaptured())
	require.Equal(t, uint64(199), queue.Drops())
}
