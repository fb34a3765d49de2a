package ws

import (
	"time"

	"skywatch/internal/detect"
	"skywatch/internal/pipeline"
	"skywatch/internal/stats"
	"skywatch/internal/track"
)

// ResultMessage streams one frame's pipeline output to clients.
type ResultMessage struct {
	Type       string             `json:"type"` // "result"
	Seq        uint64             `json:"seq"`
	Timestamp  time.Time          `json:"timestamp"`
	Learning   bool               `json:"learning"`
	Suppressed bool               `json:"suppressed"`
	Detections []detect.Detection `json:"detections"`
	Tracks     []track.Snapshot   `json:"tracks"`
}

// TrackEventMessage announces a track confirmation or loss.
type TrackEventMessage struct {
	Type      string          `json:"type"` // "track_event"
	Kind      track.EventKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Track     track.Snapshot  `json:"track"`
}

// StatsMessage carries a periodic statistics snapshot.
type StatsMessage struct {
	Type      string        `json:"type"` // "stats"
	Timestamp time.Time     `json:"timestamp"`
	Stats     stats.Summary `json:"stats"`
}

// NewResultMessage converts a pipeline result for the wire.
func NewResultMessage(r *pipeline.Result) *ResultMessage {
	return &ResultMessage{
		Type:       "result",
		Seq:        r.Seq,
		Timestamp:  r.Timestamp,
		Learning:   r.Learning,
		Suppressed: r.Suppressed,
		Detections: r.Detections,
		Tracks:     r.Tracks,
	}
}

// NewTrackEventMessage converts a tracker lifecycle event for the wire.
func NewTrackEventMessage(ev track.Event) *TrackEventMessage {
	return &TrackEventMessage{
		Type:      "track_event",
		Kind:      ev.Kind,
		Timestamp: time.Now(),
		Track:     ev.Track,
	}
}

// NewStatsMessage wraps a statistics snapshot for the wire.
func NewStatsMessage(s stats.Summary) *StatsMessage {
	return &StatsMessage{
		Type:      "stats",
		Timestamp: time.Now(),
		Stats:     s,
	}
}
