package track

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skywatch/internal/detect"
)

func testConfig() Config {
	return Config{
		HitsToConfirm: 3,
		MaxMisses:     2,
		MatchDistance: 50,
		Smoothing:     1.0,
	}
}

func det(x, y int) detect.Detection {
	d := detect.Detection{
		Box:        image.Rect(x-5, y-5, x+5, y+5),
		Centroid:   image.Pt(x, y),
		Area:       100,
		Confidence: 0.8,
		Stage:      detect.StageFused,
	}
	return d
}

func TestTrackerConfirmsAfterConsecutiveHits(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	// Frames 1 and 2: tentative only
	for seq := uint64(1); seq <= 2; seq++ {
		events := tr.Update([]detect.Detection{det(100, 100)}, seq, ts)
		require.Empty(t, events, "no confirmation at frame %d", seq)
		require.Empty(t, tr.Confirmed())
	}

	// Frame 3: third consecutive hit promotes
	events := tr.Update([]detect.Detection{det(100, 100)}, 3, ts)
	require.Len(t, events, 1)
	require.Equal(t, EventConfirmed, events[0].Kind)
	require.Equal(t, Confirmed, events[0].Track.State)

	confirmed := tr.Confirmed()
	require.Len(t, confirmed, 1)
	require.Equal(t, uint64(1), confirmed[0].FirstSeq)
	require.Equal(t, uint64(3), confirmed[0].LastSeq)
}

func TestTrackerMissBreaksHitStreak(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100)}, 1, ts)
	tr.Update([]detect.Detection{det(100, 100)}, 2, ts)
	tr.Update(nil, 3, ts) // Gap resets the streak
	tr.Update([]detect.Detection{det(100, 100)}, 4, ts)
	events := tr.Update([]detect.Detection{det(100, 100)}, 5, ts)
	require.Empty(t, events, "streak restarted, two hits are not enough")

	events = tr.Update([]detect.Detection{det(100, 100)}, 6, ts)
	require.Len(t, events, 1)
	require.Equal(t, EventConfirmed, events[0].Kind)
}

func TestTrackerDropsTrackAfterMaxMisses(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	for seq := uint64(1); seq <= 3; seq++ {
		tr.Update([]detect.Detection{det(100, 100)}, seq, ts)
	}
	require.Len(t, tr.Confirmed(), 1)

	events := tr.Update(nil, 4, ts)
	require.Empty(t, events)
	require.Len(t, tr.Confirmed(), 1, "one miss does not drop")

	events = tr.Update(nil, 5, ts)
	require.Len(t, events, 1)
	require.Equal(t, EventLost, events[0].Kind)
	require.Empty(t, tr.Confirmed())
	require.Empty(t, tr.All())
}

func TestTrackerTentativeVanishesSilently(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100)}, 1, ts)
	tr.Update(nil, 2, ts)
	events := tr.Update(nil, 3, ts)
	require.Empty(t, events, "unconfirmed tracks are removed without a lost event")
	require.Empty(t, tr.All())
}

func TestTrackerIDsAreMonotonic(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100)}, 1, ts)
	first := tr.All()[0].ID

	// Lose the first track entirely, then a new target appears
	tr.Update(nil, 2, ts)
	tr.Update(nil, 3, ts)
	tr.Update([]detect.Detection{det(100, 100)}, 4, ts)

	second := tr.All()[0].ID
	require.Greater(t, second, first, "ids are never reused")
}

func TestTrackerMatchesNearestTrack(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100), det(200, 100)}, 1, ts)
	require.Len(t, tr.All(), 2)

	// Both candidates moved a little; each should extend its own track
	tr.Update([]detect.Detection{det(205, 102), det(103, 99)}, 2, ts)
	all := tr.All()
	require.Len(t, all, 2)
	for _, snap := range all {
		require.Equal(t, 2, snap.Hits)
	}
}

func TestTrackerGatingRejectsDistantCandidate(t *testing.T) {
	tr := NewTracker(testConfig())
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100)}, 1, ts)
	tr.Update([]detect.Detection{det(400, 400)}, 2, ts)

	// The distant candidate opened a second track instead of matching
	require.Len(t, tr.All(), 2)
}

func TestTrackerSmoothsCentroid(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing = 0.5
	tr := NewTracker(cfg)
	ts := time.Now()

	tr.Update([]detect.Detection{det(100, 100)}, 1, ts)
	tr.Update([]detect.Detection{det(120, 100)}, 2, ts)

	snap := tr.All()[0]
	require.InDelta(t, 110, snap.CX, 1e-6)
	require.InDelta(t, 100, snap.CY, 1e-6)
}
