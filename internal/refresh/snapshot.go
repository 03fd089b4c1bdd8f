package refresh

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdavidhalljr/weekly-allocator/internal/allocator"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Snapshot is the outcome of one refresh cycle
type Snapshot struct {
	ID          uuid.UUID          `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Provider    string             `json:"provider"`
	Market      string             `json:"market"` // US session state when the cycle started
	Weights     model.Weights      `json:"weights"`
	Instruments []model.Instrument `json:"instruments"`
	Result      allocator.Result   `json:"result"`
	Failures    map[string]string  `json:"failures,omitempty"`
}

// Duration returns how long the cycle took
func (s *Snapshot) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// NameFor returns the display name of symbol within this snapshot
func (s *Snapshot) NameFor(symbol string) string {
	for _, inst := range s.Instruments {
		if inst.Symbol == symbol {
			return inst.Name
		}
	}
	return ""
}

// Latest holds the most recently published snapshot
type Latest struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// Set publishes snap
func (l *Latest) Set(snap *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap
}

// Get returns the latest snapshot, false before the first cycle completes
func (l *Latest) Get() (*Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.snap != nil
}
