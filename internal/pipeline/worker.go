package pipeline

import (
	"fmt"
	"image"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skywatch/internal/detect"
	"skywatch/internal/source"
	"skywatch/internal/stats"
	"skywatch/internal/track"
)

const popTimeout = 100 * time.Millisecond

// ProcessingWorker drains the handoff queue on a single goroutine and runs
// each frame through the detection stages: motion, color, fusion, region
// extraction, temporal confirmation. All stage state is owned by this
// goroutine; control surfaces only flip atomic flags or swap the config.
type ProcessingWorker struct {
	queue *FrameQueue
	bus   *EventBus
	stats *stats.Stream

	motion  *detect.MotionStage
	color   *detect.ColorStage
	tracker *track.Tracker
	cfg     atomic.Pointer[Config]

	paused   atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewProcessingWorker(cfg Config, queue *FrameQueue, bus *EventBus, st *stats.Stream) *ProcessingWorker {
	w := &ProcessingWorker{
		queue:   queue,
		bus:     bus,
		stats:   st,
		motion:  detect.NewMotionStage(cfg.motion()),
		color:   detect.NewColorStage(cfg.color()),
		tracker: track.NewTracker(cfg.tracking()),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.cfg.Store(&cfg)
	return w
}

// Start launches the processing loop. It returns immediately.
func (w *ProcessingWorker) Start() {
	w.running.Store(true)
	go w.run()
	w.bus.PublishLifecycle(LifecycleEvent{Kind: LifecycleStarted})
}

func (w *ProcessingWorker) run() {
	defer close(w.done)
	defer w.running.Store(false)

	log.Printf("[Processing] Started")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		frame, ok := w.queue.Pop(popTimeout)
		if !ok {
			if w.queue.Closed() {
				log.Printf("[Processing] Queue closed, exiting")
				return
			}
			continue
		}

		if w.paused.Load() {
			w.stats.FramesDropped(1)
			continue
		}

		w.processFrame(frame)
	}
}

// processFrame runs one frame through all stages with panic isolation: a
// failure in any stage drops that frame and the loop continues.
func (w *ProcessingWorker) processFrame(frame *source.Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Processing] Panic on frame %d: %v\n%s", frame.Seq, r, debug.Stack())
			w.stats.FramesDropped(1)
		}
	}()

	cfg := w.cfg.Load()
	start := time.Now()
	sample := stats.PerformanceSample{Seq: frame.Seq, Timestamp: frame.Timestamp}

	t0 := time.Now()
	motionMask, suppressed := w.motion.Process(frame.Image)
	sample.MotionMs = msSince(t0)

	t0 = time.Now()
	colorMask := w.color.Process(frame.Image)
	sample.ColorMs = msSince(t0)

	t0 = time.Now()
	mode, _ := detect.ParseFusionMode(cfg.FusionMode)
	fused := detect.Fuse(motionMask, colorMask, mode, cfg.MotionWeight)
	detections := detect.ExtractComponents(fused, cfg.components(), detect.StageFused, frame.Seq, frame.Timestamp)
	sample.FusionMs = msSince(t0)

	t0 = time.Now()
	events := w.tracker.Update(detections, frame.Seq, frame.Timestamp)
	sample.TrackMs = msSince(t0)

	var thumbs map[int64][]byte
	for _, ev := range events {
		if ev.Kind != track.EventConfirmed {
			continue
		}
		box := image.Rect(ev.Track.X, ev.Track.Y, ev.Track.X+ev.Track.Width, ev.Track.Y+ev.Track.Height)
		if data := renderThumbnail(frame.Image, box); data != nil {
			if thumbs == nil {
				thumbs = make(map[int64][]byte)
			}
			thumbs[ev.Track.ID] = data
		}
	}

	sample.TotalMs = msSince(start)
	w.stats.FrameProcessed(time.Since(start))

	w.bus.PublishResult(&Result{
		ID:         uuid.NewString(),
		Seq:        frame.Seq,
		Timestamp:  frame.Timestamp,
		Learning:   w.motion.Learning(),
		Suppressed: suppressed,
		Detections: detections,
		Tracks:     w.tracker.Confirmed(),
		Events:     events,
		Thumbnails: thumbs,
		Sample:     sample,
	})
}

// Stop terminates the loop after the in-flight frame finishes. Safe to
// call from any goroutine, any number of times.
func (w *ProcessingWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
	w.bus.PublishLifecycle(LifecycleEvent{Kind: LifecycleStopped})
}

// Pause makes the worker discard frames without processing them. Capture
// continues; discarded frames count as dropped.
func (w *ProcessingWorker) Pause() {
	if w.paused.CompareAndSwap(false, true) {
		log.Printf("[Processing] Paused")
	}
}

// Resume re-enables processing.
func (w *ProcessingWorker) Resume() {
	if w.paused.CompareAndSwap(true, false) {
		log.Printf("[Processing] Resumed")
	}
}

// Paused reports whether frames are currently being discarded.
func (w *ProcessingWorker) Paused() bool {
	return w.paused.Load()
}

// Running reports whether the processing loop is live.
func (w *ProcessingWorker) Running() bool {
	return w.running.Load()
}

// Config returns the active configuration.
func (w *ProcessingWorker) Config() Config {
	return *w.cfg.Load()
}

// UpdateConfig validates and applies a new configuration. It takes effect
// on the next frame; detector models are kept unless their structural
// parameters changed. The handoff queue is sized once at startup, so a
// changed queue depth is rejected rather than silently ignored.
func (w *ProcessingWorker) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.QueueDepth != w.cfg.Load().QueueDepth {
		return fmt.Errorf("queue_depth is fixed at startup (%d), restart to change it", w.cfg.Load().QueueDepth)
	}
	w.cfg.Store(&cfg)
	w.motion.SetConfig(cfg.motion())
	w.color.SetConfig(cfg.color())
	w.tracker.SetConfig(cfg.tracking())
	log.Printf("[Processing] Config updated")
	return nil
}

// Tracker exposes the track set for read-only snapshots.
func (w *ProcessingWorker) Tracker() *track.Tracker {
	return w.tracker
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
