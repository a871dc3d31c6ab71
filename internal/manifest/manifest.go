// Package manifest writes the per-run artifact manifest consumed by
// external stitching and QA tooling. The core never reads it back.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Record describes one segment's outcome.
type Record struct {
	Index           int     `json:"index"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	Text            string  `json:"text"`
	OutputFile      string  `json:"output_file,omitempty"`
	SynthesisMethod string  `json:"synthesis_method,omitempty"`
	Success         bool    `json:"success"`
	Degraded        bool    `json:"degraded,omitempty"`
	DriftSeconds    float64 `json:"drift_seconds"`
	Error           string  `json:"error,omitempty"`
}

// Run is the manifest document for one stitching run.
type Run struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Segments   []Record  `json:"segments"`
}

// NewRun builds a manifest document, deriving the counters from the
// records. An empty ID is filled with a fresh uuid.
func NewRun(id string, skipped int, records []Record) Run {
	if id == "" {
		id = uuid.NewString()
	}
	run := Run{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Total:     len(records),
		Skipped:   skipped,
		Segments:  records,
	}
	for _, rec := range records {
		if rec.Success {
			run.Successful++
		} else {
			run.Failed++
		}
	}
	return run
}

// Write stores the manifest as indented JSON at path.
func Write(path string, run Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
