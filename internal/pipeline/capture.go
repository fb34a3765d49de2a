package pipeline

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"skywatch/internal/source"
	"skywatch/internal/stats"
)

// CaptureWorker owns the frame source. It reads frames on its own
// goroutine, stamps them with a sequence number, and pushes them into the
// handoff queue without ever blocking on the consumer, so capture keeps
// pace with the source no matter how slow processing gets.
type CaptureWorker struct {
	src   source.FrameSource
	queue *FrameQueue
	bus   *EventBus
	stats *stats.Stream

	seq      atomic.Uint64
	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func NewCaptureWorker(src source.FrameSource, queue *FrameQueue, bus *EventBus, st *stats.Stream) *CaptureWorker {
	return &CaptureWorker{
		src:   src,
		queue: queue,
		bus:   bus,
		stats: st,
		done:  make(chan struct{}),
	}
}

// Start launches the capture loop. It returns immediately.
func (w *CaptureWorker) Start() {
	w.running.Store(true)
	go w.run()
}

func (w *CaptureWorker) run() {
	defer close(w.done)
	defer w.running.Store(false)

	log.Printf("[Capture] Started")

	for {
		img, ts, err := w.src.Read()
		if err != nil {
			if errors.Is(err, source.ErrSourceClosed) {
				log.Printf("[Capture] Source ended")
				w.bus.PublishLifecycle(LifecycleEvent{Kind: LifecycleStopped})
			} else {
				log.Printf("[Capture] Source failed: %v", err)
				w.bus.PublishLifecycle(LifecycleEvent{Kind: LifecycleSourceError, Err: err})
			}
			w.queue.Close()
			return
		}

		frame := &source.Frame{
			Image:     img,
			Seq:       w.seq.Add(1),
			Timestamp: ts,
		}

		w.stats.FrameReceived()
		if w.queue.Push(frame) {
			w.stats.FramesDropped(1)
		}

		if frame.Seq%300 == 0 {
			log.Printf("[Capture] Frame %d (dropped so far: %d)", frame.Seq, w.queue.Drops())
		}
	}
}

// Stop closes the source, which unblocks a pending read and terminates the
// loop. Safe to call from any goroutine, any number of times.
func (w *CaptureWorker) Stop() {
	w.stopOnce.Do(func() {
		w.src.Close()
	})
	<-w.done
}

// Running reports whether the capture loop is live.
func (w *CaptureWorker) Running() bool {
	return w.running.Load()
}

// FramesCaptured returns the number of frames read so far.
func (w *CaptureWorker) FramesCaptured() uint64 {
	return w.seq.Load()
}
