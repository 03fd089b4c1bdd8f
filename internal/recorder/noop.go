package recorder

import "github.com/rdavidhalljr/weekly-allocator/internal/refresh"

// NoopRecorder discards cycles; used when no SQLite path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(_ *refresh.Snapshot) error { return nil }
func (n *NoopRecorder) Close() error                          { return nil }
