package ranking

import (
	"sort"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Entry is one ranked symbol
type Entry struct {
	Position int     `json:"position"` // 1-based
	Symbol   string  `json:"symbol"`
	Score    float64 `json:"score"`
}

// Rank orders the scoreable results by composite, highest first. Unscoreable results are
// dropped. Ties keep input order, so the earlier symbol wins.
func Rank(results []model.ScoreResult) []Entry {
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if !r.Scoreable() {
			continue
		}
		entries = append(entries, Entry{Symbol: r.Symbol, Score: r.Composite})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries
}

// Recommend returns the top-ranked symbol. ok is false when nothing could be scored.
func Recommend(results []model.ScoreResult) (string, bool) {
	entries := Rank(results)
	if len(entries) == 0 {
		return "", false
	}
	return entries[0].Symbol, true
}
