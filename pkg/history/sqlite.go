package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate creates the database schema
func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			video_id TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			watched_seconds REAL NOT NULL,
			elapsed_seconds REAL NOT NULL,
			watch_percentage INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			samples INTEGER NOT NULL DEFAULT 0,
			detector_errors INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_video ON sessions(video_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces a record. An empty ID is filled in.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("history: record has no session id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (
			id, session_id, video_id, started_at, ended_at,
			watched_seconds, elapsed_seconds, watch_percentage, outcome,
			samples, detector_errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.VideoID, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
		rec.WatchedSeconds, rec.ElapsedSeconds, rec.WatchPercentage, rec.Outcome,
		rec.Samples, rec.DetectorErrors)
	if err != nil {
		return fmt.Errorf("history: save %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, video_id, started_at, ended_at,
			watched_seconds, elapsed_seconds, watch_percentage, outcome,
			samples, detector_errors
		FROM sessions WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the most recent records, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, video_id, started_at, ended_at,
			watched_seconds, elapsed_seconds, watch_percentage, outcome,
			samples, detector_errors
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var startedAt, endedAt time.Time
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.VideoID, &startedAt, &endedAt,
		&rec.WatchedSeconds, &rec.ElapsedSeconds, &rec.WatchPercentage, &rec.Outcome,
		&rec.Samples, &rec.DetectorErrors)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = startedAt.UTC()
	rec.EndedAt = endedAt.UTC()
	return &rec, nil
}
