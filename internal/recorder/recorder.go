// Package recorder archives refresh cycles.
package recorder

import (
	"time"

	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
)

// Recorder persists finished cycles
type Recorder interface {
	RecordCycle(snap *refresh.Snapshot) error
	Close() error
}

// CycleSummary is one archived cycle as listed by the history view
type CycleSummary struct {
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	Provider       string        `json:"provider"`
	Market         string        `json:"market"`
	Recommendation string        `json:"recommendation,omitempty"`
	Failures       int           `json:"failures"`
}

// ScorePoint is one recorded composite score for a symbol
type ScorePoint struct {
	At        time.Time `json:"at"`
	Composite float64   `json:"composite"`
	Position  int       `json:"position"`
}

var (
	_ Recorder         = (*SQLiteRecorder)(nil)
	_ Recorder         = (*NoopRecorder)(nil)
	_ refresh.Recorder = (*SQLiteRecorder)(nil)
)
