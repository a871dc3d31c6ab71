package runstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RunRecord is the persisted summary of one stitching run.
type RunRecord struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	MeanDrift  float64   `json:"mean_drift_seconds"`
	MaxDrift   float64   `json:"max_drift_seconds"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SegmentRecord is one segment's persisted outcome within a run.
type SegmentRecord struct {
	RunID           string    `json:"run_id"`
	Index           int       `json:"index"`
	Start           float64   `json:"start"`
	End             float64   `json:"end"`
	Text            string    `json:"text"`
	OutputFile      string    `json:"output_file,omitempty"`
	SynthesisMethod string    `json:"synthesis_method,omitempty"`
	Success         bool      `json:"success"`
	Degraded        bool      `json:"degraded,omitempty"`
	DriftSeconds    float64   `json:"drift_seconds"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Store persists runs and their per-segment outcomes for the status
// API and post-run QA tooling.
type Store interface {
	SaveRun(ctx context.Context, record RunRecord) error
	SaveSegment(ctx context.Context, record SegmentRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListSegments(ctx context.Context, runID string) ([]SegmentRecord, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
