package track

import (
	"image"
	"math"
	"sort"
	"sync"
	"time"

	"skywatch/internal/detect"
)

// Config controls temporal confirmation.
type Config struct {
	// HitsToConfirm is the number of consecutive matched frames before
	// a tentative track is promoted.
	HitsToConfirm int
	// MaxMisses is the number of consecutive unmatched frames before a
	// track is dropped.
	MaxMisses int
	// MatchDistance is the largest centroid distance, in pixels, at
	// which a candidate can be associated with an existing track.
	MatchDistance float64
	// Smoothing is the exponential blend factor applied to centroid and
	// box updates, in (0, 1]. 1 disables smoothing.
	Smoothing float64
}

// Tracker associates per-frame candidate detections with persistent tracks
// and promotes them only after they survive several consecutive frames.
// A flash of glare flags one frame; a person flags every frame.
//
// Mutation happens only on the processing goroutine via Update. Snapshots
// for other goroutines go through Confirmed and All.
type Tracker struct {
	mu     sync.RWMutex
	cfg    Config
	tracks []*Track
	nextID int64
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, nextID: 1}
}

func (tr *Tracker) SetConfig(cfg Config) {
	tr.mu.Lock()
	tr.cfg = cfg
	tr.mu.Unlock()
}

// Update folds one frame's candidates into the track set using greedy
// nearest-centroid association, closest pairs first. It returns lifecycle
// events for tracks promoted or lost during this update.
func (tr *Tracker) Update(cands []detect.Detection, seq uint64, ts time.Time) []Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	type pair struct {
		ti, ci int
		dist   float64
	}
	var pairs []pair
	for ti, t := range tr.tracks {
		for ci := range cands {
			d := dist(t.CX, t.CY, float64(cands[ci].Centroid.X), float64(cands[ci].Centroid.Y))
			if d <= tr.cfg.MatchDistance {
				pairs = append(pairs, pair{ti, ci, d})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	matchedTrack := make([]bool, len(tr.tracks))
	matchedCand := make([]bool, len(cands))
	var events []Event

	for _, p := range pairs {
		if matchedTrack[p.ti] || matchedCand[p.ci] {
			continue
		}
		matchedTrack[p.ti] = true
		matchedCand[p.ci] = true

		t := tr.tracks[p.ti]
		tr.absorb(t, &cands[p.ci], seq, ts)
		t.Hits++
		t.Misses = 0
		if t.State == Tentative && t.Hits >= tr.cfg.HitsToConfirm {
			t.State = Confirmed
			events = append(events, Event{Kind: EventConfirmed, Track: t.snapshot()})
		}
	}

	// Unmatched tracks accumulate misses; the hit streak is broken.
	kept := tr.tracks[:0]
	for ti, t := range tr.tracks {
		if matchedTrack[ti] {
			kept = append(kept, t)
			continue
		}
		t.Hits = 0
		t.Misses++
		if t.Misses >= tr.cfg.MaxMisses {
			if t.State == Confirmed {
				t.State = Stale
				events = append(events, Event{Kind: EventLost, Track: t.snapshot()})
			}
			continue
		}
		kept = append(kept, t)
	}
	tr.tracks = kept

	// Unmatched candidates open new tentative tracks.
	for ci := range cands {
		if matchedCand[ci] {
			continue
		}
		c := &cands[ci]
		t := &Track{
			ID:         tr.nextID,
			State:      Tentative,
			CX:         float64(c.Centroid.X),
			CY:         float64(c.Centroid.Y),
			Box:        c.Box,
			Area:       c.Area,
			Confidence: c.Confidence,
			Hits:       1,
			FirstSeen:  ts,
			LastSeen:   ts,
			FirstSeq:   seq,
			LastSeq:    seq,
		}
		tr.nextID++
		if t.Hits >= tr.cfg.HitsToConfirm {
			t.State = Confirmed
			events = append(events, Event{Kind: EventConfirmed, Track: t.snapshot()})
		}
		tr.tracks = append(tr.tracks, t)
	}

	return events
}

// absorb blends a matched candidate into the track with exponential
// smoothing so jittery masks produce stable boxes.
func (tr *Tracker) absorb(t *Track, c *detect.Detection, seq uint64, ts time.Time) {
	a := tr.cfg.Smoothing
	if a <= 0 || a > 1 {
		a = 1
	}
	t.CX = a*float64(c.Centroid.X) + (1-a)*t.CX
	t.CY = a*float64(c.Centroid.Y) + (1-a)*t.CY
	t.Box = blendRect(t.Box, c.Box, a)
	t.Area = c.Area
	t.Confidence = a*c.Confidence + (1-a)*t.Confidence
	t.LastSeen = ts
	t.LastSeq = seq
}

// Confirmed returns snapshots of all confirmed tracks.
func (tr *Tracker) Confirmed() []Snapshot {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]Snapshot, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		if t.State == Confirmed {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// All returns snapshots of every live track, tentative included.
func (tr *Tracker) All() []Snapshot {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]Snapshot, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		out = append(out, t.snapshot())
	}
	return out
}

// Reset drops all tracks. Track ids keep counting up.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	tr.tracks = nil
	tr.mu.Unlock()
}

func blendRect(prev, cur image.Rectangle, a float64) image.Rectangle {
	lerp := func(o, n int) int {
		return int(math.Round(a*float64(n) + (1-a)*float64(o)))
	}
	return image.Rect(
		lerp(prev.Min.X, cur.Min.X),
		lerp(prev.Min.Y, cur.Min.Y),
		lerp(prev.Max.X, cur.Max.X),
		lerp(prev.Max.Y, cur.Max.Y),
	)
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}
