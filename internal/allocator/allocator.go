// Package allocator runs one ranking pass: score every instrument, resolve display
// prices and pick the week's allocation.
package allocator

import (
	"github.com/rdavidhalljr/weekly-allocator/internal/pricing"
	"github.com/rdavidhalljr/weekly-allocator/internal/ranking"
	"github.com/rdavidhalljr/weekly-allocator/internal/scoring"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Input is everything a pass reads. Weights are a snapshot and are not modified.
type Input struct {
	Instruments []model.Instrument
	Series      map[string]model.PriceSeries
	Quotes      map[string]model.Quote
	Weights     model.Weights
}

// Result is the outcome of a pass. Scores and Prices follow instrument order.
type Result struct {
	Scores            []model.ScoreResult  `json:"scores"`
	Prices            []model.DisplayPrice `json:"prices"`
	Ranking           []ranking.Entry      `json:"ranking"`
	Recommendation    string               `json:"recommendation,omitempty"`
	HasRecommendation bool                 `json:"has_recommendation"`
}

// Evaluate scores, prices and ranks the input
func Evaluate(in Input) Result {
	scores := scoring.ScoreAll(in.Instruments, in.Series, in.Weights)
	entries := ranking.Rank(scores)

	res := Result{
		Scores:  scores,
		Prices:  pricing.ResolveAll(in.Instruments, in.Series, in.Quotes),
		Ranking: entries,
	}
	if len(entries) > 0 {
		res.Recommendation = entries[0].Symbol
		res.HasRecommendation = true
	}
	return res
}

// ScoreFor returns the score computed for symbol
func (r Result) ScoreFor(symbol string) (model.ScoreResult, bool) {
	for _, s := range r.Scores {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return model.ScoreResult{}, false
}

// PriceFor returns the display price resolved for symbol
func (r Result) PriceFor(symbol string) (model.DisplayPrice, bool) {
	for _, p := range r.Prices {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return model.DisplayPrice{}, false
}
