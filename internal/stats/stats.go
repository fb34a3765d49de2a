package stats

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceSample is the per-frame timing breakdown emitted alongside
// detection results.
type PerformanceSample struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	MotionMs  float64   `json:"motion_ms"`
	ColorMs   float64   `json:"color_ms"`
	FusionMs  float64   `json:"fusion_ms"`
	TrackMs   float64   `json:"track_ms"`
	TotalMs   float64   `json:"total_ms"`
}

// Summary is a point-in-time aggregate over the rolling window.
type Summary struct {
	FPS             float64 `json:"fps"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	FramesReceived  uint64  `json:"frames_received"`
	FramesProcessed uint64  `json:"frames_processed"`
	FramesDropped   uint64  `json:"frames_dropped"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Stream tracks throughput and latency over a fixed rolling window of
// recent frames. FPS is derived from source inter-arrival intervals, not
// from processing latency, so a slow pipeline on a fast source still
// reports the true source rate even while frames are being dropped.
type Stream struct {
	mu sync.Mutex

	window    int
	intervals []float64 // Seconds between consecutive source arrivals
	latencies []float64 // Per-frame processing latency in ms

	lastArrival time.Time
	received    uint64
	processed   uint64
	dropped     uint64
	start       time.Time
}

// NewStream creates stream statistics over a window of recent frames.
// A non-positive window defaults to 30.
func NewStream(window int) *Stream {
	if window <= 0 {
		window = 30
	}
	return &Stream{
		window:    window,
		intervals: make([]float64, 0, window),
		latencies: make([]float64, 0, window),
		start:     time.Now(),
	}
}

// FrameReceived records a frame arriving from the source. Inter-arrival
// intervals are sampled here, on the capture side, so FPS keeps tracking
// the source rate even when most frames are dropped before processing.
func (s *Stream) FrameReceived() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++
	if !s.lastArrival.IsZero() {
		s.intervals = push(s.intervals, now.Sub(s.lastArrival).Seconds(), s.window)
	}
	s.lastArrival = now
}

// FrameProcessed records a completed pipeline pass with its latency.
func (s *Stream) FrameProcessed(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.latencies = push(s.latencies, float64(latency.Microseconds())/1000.0, s.window)
}

// FramesDropped records frames discarded by the handoff queue or while
// paused.
func (s *Stream) FramesDropped(n uint64) {
	s.mu.Lock()
	s.dropped += n
	s.mu.Unlock()
}

// Snapshot computes the current aggregate.
func (s *Stream) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		FramesReceived:  s.received,
		FramesProcessed: s.processed,
		FramesDropped:   s.dropped,
		UptimeSeconds:   time.Since(s.start).Seconds(),
	}

	if len(s.intervals) > 0 {
		if mean := stat.Mean(s.intervals, nil); mean > 0 {
			sum.FPS = 1.0 / mean
		}
	}
	if len(s.latencies) > 0 {
		sum.AvgLatencyMs = stat.Mean(s.latencies, nil)
		sorted := append([]float64(nil), s.latencies...)
		sort.Float64s(sorted)
		sum.P95LatencyMs = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return sum
}

// push appends v keeping at most window elements, oldest evicted first.
func push(buf []float64, v float64, window int) []float64 {
	if len(buf) >= window {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	return append(buf, v)
}
