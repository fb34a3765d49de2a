package pipeline

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skywatch/internal/source"
	"skywatch/internal/stats"
	"skywatch/internal/track"
)

// scenarioFrame renders the survey scene: flat terrain with a red target
// block at the given position, or none when pos is nil.
func scenarioFrame(seq uint64, pos *image.Point) *source.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	draw.Draw(img, img.Rect, &image.Uniform{C: color.RGBA{96, 96, 96, 255}}, image.Point{}, draw.Src)
	if pos != nil {
		target := image.Rect(pos.X, pos.Y, pos.X+20, pos.Y+20)
		draw.Draw(img, target, &image.Uniform{C: color.RGBA{200, 30, 30, 255}}, image.Point{}, draw.Src)
	}
	return &source.Frame{Image: img, Seq: seq, Timestamp: time.Now()}
}

// A target that enters the scene moving and then parks must be confirmed
// within a few frames of appearing and stay tracked for the rest of the
// run: the background model absorbs it once it stops, but its color stays
// rare, so the fused mask keeps feeding the track.
func TestScenarioTargetHeldAfterItStopsMoving(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningFrames = 5
	cfg.ConfirmHits = 3
	cfg.FusionMode = "union"
	cfg.AnomalyPercentile = 95
	require.NoError(t, cfg.Validate())

	w, bus := newTestWorker(cfg)
	var results []*Result
	unsub := bus.Subscribe(resultCollector{&results})
	defer unsub()

	for seq := uint64(1); seq <= 100; seq++ {
		var pos *image.Point
		switch {
		case seq < 10:
			// Empty scene
		case seq <= 20:
			// Target drifts in
			p := image.Pt(40+3*int(seq-10), 50)
			pos = &p
		default:
			// Parked at its final position
			p := image.Pt(70, 50)
			pos = &p
		}
		w.processFrame(scenarioFrame(seq, pos))
	}

	require.Len(t, results, 100)

	for _, r := range results[:9] {
		require.Empty(t, r.Detections, "empty scene flagged at seq %d", r.Seq)
		require.Empty(t, r.Tracks)
	}

	var confirmed []track.Event
	for _, r := range results {
		for _, ev := range r.Events {
			switch ev.Kind {
			case track.EventConfirmed:
				confirmed = append(confirmed, ev)
				require.LessOrEqual(t, r.Seq, uint64(13), "confirmation must follow within a few hits of first sight")
			case track.EventLost:
				t.Fatalf("track %d lost at seq %d; the parked target must never time out", ev.Track.ID, r.Seq)
			}
		}
	}
	require.Len(t, confirmed, 1, "exactly one target, one confirmation")
	require.Equal(t, uint64(10), confirmed[0].Track.FirstSeq)

	last := results[len(results)-1]
	require.Len(t, last.Tracks, 1)
	require.Equal(t, confirmed[0].Track.ID, last.Tracks[0].ID, "identity survives the whole run")
	require.Equal(t, uint64(100), last.Tracks[0].LastSeq)
}

type scenarioCollector struct {
	mu        sync.Mutex
	results   int
	confirmed int
}

func (c *scenarioCollector) OnResult(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results++
	for _, ev := range r.Events {
		if ev.Kind == track.EventConfirmed {
			c.confirmed++
		}
	}
}

func (c *scenarioCollector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results, c.confirmed
}

// Full wiring: synthetic source, capture worker, handoff queue, processing
// worker. Frame drops under load are allowed; a persistent target must
// still confirm because every frame that does get processed contains it.
func TestScenarioLiveCaptureConfirmsTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningFrames = 5
	cfg.ConfirmHits = 3
	cfg.FusionMode = "union"
	cfg.AnomalyPercentile = 95

	src := source.NewSynthetic(160, 120, 80)
	src.Interval = 2 * time.Millisecond
	src.Background = color.RGBA{96, 96, 96, 255}
	src.Render = func(seq int, img *image.RGBA) {
		if seq < 10 {
			return
		}
		target := image.Rect(70, 50, 90, 70)
		draw.Draw(img, target, &image.Uniform{C: color.RGBA{200, 30, 30, 255}}, image.Point{}, draw.Src)
	}

	st := stats.NewStream(cfg.StatsWindow)
	queue := NewFrameQueue(cfg.QueueDepth)
	bus := NewEventBus()
	w := NewProcessingWorker(cfg, queue, bus, st)
	capture := NewCaptureWorker(src, queue, bus, st)

	collector := &scenarioCollector{}
	unsub := bus.Subscribe(collector)
	defer unsub()

	w.Start()
	capture.Start()

	require.Eventually(t, func() bool {
		_, confirmed := collector.counts()
		return confirmed >= 1
	}, 5*time.Second, 10*time.Millisecond, "live target was never confirmed")

	// The source is finite: capture ends, the queue closes, the worker
	// drains and exits on its own.
	require.Eventually(t, func() bool { return !capture.Running() && !w.Running() }, 5*time.Second, 10*time.Millisecond)

	capture.Stop()
	w.Stop()

	processed, _ := collector.counts()
	require.Greater(t, processed, 0)
	require.Equal(t, uint64(80), capture.FramesCaptured())
	require.Equal(t, st.Snapshot().FramesProcessed+queue.Drops(), uint64(80),
		"every captured frame was processed or dropped")
}
