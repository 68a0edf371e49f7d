// Package history persists finished attention sessions.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-gazegate/pkg/attention"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("history: record not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Record is one finished viewing session.
type Record struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	VideoID         string    `json:"video_id,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	WatchedSeconds  float64   `json:"watched_seconds"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	WatchPercentage int       `json:"watch_percentage"`
	Outcome         string    `json:"outcome"`
	Samples         int64     `json:"samples"`
	DetectorErrors  int64     `json:"detector_errors"`
}

// Store defines the interface for session persistence
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}

// FromSummary builds a record from a session-end report.
func FromSummary(sum attention.SessionSummary, videoID string) *Record {
	return &Record{
		SessionID:       sum.Session.ID,
		VideoID:         videoID,
		StartedAt:       sum.Session.StartedAt,
		EndedAt:         sum.EndedAt,
		WatchedSeconds:  sum.Final.WatchedSeconds,
		ElapsedSeconds:  sum.Final.ElapsedSeconds,
		WatchPercentage: sum.Final.WatchPercentage,
		Outcome:         string(sum.Outcome),
		Samples:         sum.Stats.Samples,
		DetectorErrors:  sum.Stats.DetectorErrors,
	}
}
