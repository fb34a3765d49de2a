package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists confirmed anomaly events in SQLite so a run can be
// reviewed after the aircraft lands.
type Store struct {
	db *sql.DB
}

// EventRecord is one confirmed anomaly track written to disk. A row is
// inserted when a track is confirmed and its last_seen fields are updated
// when the track is lost.
type EventRecord struct {
	ID         string    `json:"id"`
	TrackID    int64     `json:"track_id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	FirstSeq   uint64    `json:"first_seq"`
	LastSeq    uint64    `json:"last_seq"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Confidence float64   `json:"confidence"`

	// JPEG crop of the region at confirmation time. Served from its own
	// endpoint rather than inlined in event listings.
	Thumbnail []byte `json:"-"`
}

// Open opens (or creates) the database and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode so HTTP reads never block the pipeline's writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS anomaly_events (
			id TEXT PRIMARY KEY,
			track_id INTEGER NOT NULL,
			first_seen DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			first_seq INTEGER NOT NULL,
			last_seq INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			confidence REAL NOT NULL,
			thumbnail BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_first_seen ON anomaly_events(first_seen DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_track ON anomaly_events(track_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveEvent inserts a confirmed event, or refreshes its extent if the same
// id is written again.
func (s *Store) SaveEvent(ev *EventRecord) error {
	query := `INSERT INTO anomaly_events
		(id, track_id, first_seen, last_seen, first_seq, last_seq, x, y, width, height, confidence, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_seen = excluded.last_seen,
			last_seq = excluded.last_seq,
			x = excluded.x,
			y = excluded.y,
			width = excluded.width,
			height = excluded.height,
			confidence = excluded.confidence,
			thumbnail = COALESCE(excluded.thumbnail, anomaly_events.thumbnail)`

	_, err := s.db.Exec(query, ev.ID, ev.TrackID, ev.FirstSeen, ev.LastSeen,
		ev.FirstSeq, ev.LastSeq, ev.X, ev.Y, ev.Width, ev.Height, ev.Confidence,
		ev.Thumbnail)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// CloseEvent records the final extent of a track that went stale.
func (s *Store) CloseEvent(trackID int64, lastSeen time.Time, lastSeq uint64) error {
	_, err := s.db.Exec(
		`UPDATE anomaly_events SET last_seen = ?, last_seq = ? WHERE track_id = ?`,
		lastSeen, lastSeq, trackID)
	if err != nil {
		return fmt.Errorf("failed to close event: %w", err)
	}
	return nil
}

// GetEvent retrieves one event by id, or nil if absent.
func (s *Store) GetEvent(id string) (*EventRecord, error) {
	query := `SELECT id, track_id, first_seen, last_seen, first_seq, last_seq,
		x, y, width, height, confidence, thumbnail
		FROM anomaly_events WHERE id = ?`

	var ev EventRecord
	err := s.db.QueryRow(query, id).Scan(&ev.ID, &ev.TrackID, &ev.FirstSeen,
		&ev.LastSeen, &ev.FirstSeq, &ev.LastSeq, &ev.X, &ev.Y, &ev.Width,
		&ev.Height, &ev.Confidence, &ev.Thumbnail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// ListEvents returns events newest first, optionally bounded by a start
// time and a row limit. Thumbnails are not loaded; fetch them per event.
func (s *Store) ListEvents(since *time.Time, limit int) ([]*EventRecord, error) {
	query := `SELECT id, track_id, first_seen, last_seen, first_seq, last_seq,
		x, y, width, height, confidence
		FROM anomaly_events WHERE 1=1`
	args := []interface{}{}

	if since != nil {
		query += " AND first_seen >= ?"
		args = append(args, *since)
	}

	query += " ORDER BY first_seen DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.ID, &ev.TrackID, &ev.FirstSeen, &ev.LastSeen,
			&ev.FirstSeq, &ev.LastSeq, &ev.X, &ev.Y, &ev.Width, &ev.Height,
			&ev.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// DeleteBefore prunes events whose first_seen precedes the cutoff.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM anomaly_events WHERE first_seen < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return result.RowsAffected()
}
