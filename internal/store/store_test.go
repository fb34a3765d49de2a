package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, trackID int64, firstSeen time.Time) *EventRecord {
	return &EventRecord{
		ID:         id,
		TrackID:    trackID,
		FirstSeen:  firstSeen,
		LastSeen:   firstSeen,
		FirstSeq:   10,
		LastSeq:    12,
		X:          100,
		Y:          50,
		Width:      12,
		Height:     20,
		Confidence: 0.85,
	}
}

func TestStoreSaveAndGetEvent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveEvent(record("ev-1", 1, now)))

	got, err := s.GetEvent("ev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(1), got.TrackID)
	require.Equal(t, 100, got.X)
	require.InDelta(t, 0.85, got.Confidence, 1e-9)
	require.True(t, got.FirstSeen.Equal(now))
}

func TestStoreGetMissingEventReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetEvent("nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreSaveUpsertsExtent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := record("ev-1", 1, now)
	require.NoError(t, s.SaveEvent(rec))

	rec.LastSeen = now.Add(10 * time.Second)
	rec.LastSeq = 40
	require.NoError(t, s.SaveEvent(rec))

	got, err := s.GetEvent("ev-1")
	require.NoError(t, err)
	require.Equal(t, uint64(40), got.LastSeq)
	require.True(t, got.LastSeen.Equal(now.Add(10*time.Second)))
}

func TestStoreThumbnailSurvivesUpsert(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := record("ev-1", 1, now)
	rec.Thumbnail = []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	require.NoError(t, s.SaveEvent(rec))

	got, err := s.GetEvent("ev-1")
	require.NoError(t, err)
	require.Equal(t, rec.Thumbnail, got.Thumbnail)

	// A later upsert without a thumbnail must not erase the stored one
	refresh := record("ev-1", 1, now)
	refresh.LastSeq = 40
	require.NoError(t, s.SaveEvent(refresh))

	got, err = s.GetEvent("ev-1")
	require.NoError(t, err)
	require.Equal(t, uint64(40), got.LastSeq)
	require.Equal(t, rec.Thumbnail, got.Thumbnail)
}

func TestStoreCloseEventByTrack(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveEvent(record("ev-1", 7, now)))
	require.NoError(t, s.CloseEvent(7, now.Add(time.Minute), 99))

	got, err := s.GetEvent("ev-1")
	require.NoError(t, err)
	require.Equal(t, uint64(99), got.LastSeq)
}

func TestStoreListEventsNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		rec := record("", int64(i), base.Add(time.Duration(i)*time.Minute))
		rec.ID = string(rune('a' + i))
		require.NoError(t, s.SaveEvent(rec))
	}

	events, err := s.ListEvents(nil, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, int64(4), events[0].TrackID)
	require.Equal(t, int64(2), events[2].TrackID)

	since := base.Add(3 * time.Minute)
	events, err = s.ListEvents(&since, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestStoreDeleteBefore(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveEvent(record("old", 1, base.Add(-time.Hour))))
	require.NoError(t, s.SaveEvent(record("new", 2, base)))

	n, err := s.DeleteBefore(base.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	events, err := s.ListEvents(nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "new", events[0].ID)
}
