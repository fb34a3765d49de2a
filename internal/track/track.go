package track

import (
	"image"
	"time"
)

// State is a track's position in the confirmation lifecycle.
type State string

const (
	// Tentative tracks have been seen but not long enough to trust.
	Tentative State = "tentative"
	// Confirmed tracks persisted for the configured number of
	// consecutive frames and are reported downstream.
	Confirmed State = "confirmed"
	// Stale tracks missed too many consecutive frames and are about to
	// be removed.
	Stale State = "stale"
)

// Track is one temporally-confirmed anomaly region. Identity is a
// monotonically increasing id that is never reused within a run.
type Track struct {
	ID    int64
	State State

	// Smoothed centroid in full-resolution pixel coordinates.
	CX, CY float64

	Box        image.Rectangle
	Area       int
	Confidence float64

	Hits   int // Consecutive frames with a matched candidate
	Misses int // Consecutive frames without one

	FirstSeen time.Time
	LastSeen  time.Time
	FirstSeq  uint64
	LastSeq   uint64
}

// Snapshot is an immutable copy of a track for consumers outside the
// processing goroutine.
type Snapshot struct {
	ID         int64     `json:"id"`
	State      State     `json:"state"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CX         float64   `json:"cx"`
	CY         float64   `json:"cy"`
	Area       int       `json:"area"`
	Confidence float64   `json:"confidence"`
	Hits       int       `json:"hits"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	FirstSeq   uint64    `json:"first_seq"`
	LastSeq    uint64    `json:"last_seq"`
}

func (t *Track) snapshot() Snapshot {
	return Snapshot{
		ID:         t.ID,
		State:      t.State,
		X:          t.Box.Min.X,
		Y:          t.Box.Min.Y,
		Width:      t.Box.Dx(),
		Height:     t.Box.Dy(),
		CX:         t.CX,
		CY:         t.CY,
		Area:       t.Area,
		Confidence: t.Confidence,
		Hits:       t.Hits,
		FirstSeen:  t.FirstSeen,
		LastSeen:   t.LastSeen,
		FirstSeq:   t.FirstSeq,
		LastSeq:    t.LastSeq,
	}
}

// EventKind marks a lifecycle transition worth reporting.
type EventKind string

const (
	// EventConfirmed fires once, when a tentative track is promoted.
	EventConfirmed EventKind = "confirmed"
	// EventLost fires when a confirmed track goes stale and is removed.
	EventLost EventKind = "lost"
)

// Event is a track lifecycle transition produced during an update.
type Event struct {
	Kind  EventKind
	Track Snapshot
}
