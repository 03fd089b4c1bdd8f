// Package scoring turns a daily close history into trend, momentum and short-term
// return signals and blends them into one composite score.
package scoring

import (
	"math"

	"github.com/rdavidhalljr/weekly-allocator/internal/indicator"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

const (
	// MinPoints is the shortest history that produces a finite composite
	MinPoints = 5

	trendWindow   = 20
	momentumFast  = 10
	momentumSlow  = 20
	momentumMin   = 21
	recentWindow  = 5
	diagnosticRSI = 14
)

// Unscored is the composite assigned to a symbol that cannot be ranked
var Unscored = math.Inf(-1)

// SlopeScore is the OLS slope of the last 20 closes normalized by their sample stdev.
// A trend score, not a price: it is unitless and comparable across symbols.
func SlopeScore(closes []float64) float64 {
	if len(closes) < MinPoints {
		return 0
	}
	window := tail(closes, trendWindow)
	sd := indicator.Stdev(window)
	if sd == 0 {
		return 0
	}
	return indicator.Slope(window) / sd
}

// MomentumScore is the relative gap between EMA10 and EMA20 at the latest close.
// Both averages run over the full history so they are warmed up.
func MomentumScore(closes []float64) float64 {
	if len(closes) < momentumMin {
		return 0
	}
	fast := indicator.EMA(closes, momentumFast)
	slow := indicator.EMA(closes, momentumSlow)
	diff := fast[len(fast)-1] - slow[len(slow)-1]
	// a zero baseline divides by 1 instead, so the score degrades to the raw gap
	base := slow[len(slow)-1]
	if base == 0 {
		base = 1
	}
	return diff / base
}

// RecentReturn is the simple return across the last five closes
func RecentReturn(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	window := tail(closes, recentWindow)
	diff := window[len(window)-1] - window[0]
	// same zero-baseline substitution as MomentumScore
	base := window[0]
	if base == 0 {
		base = 1
	}
	return diff / base
}

// Composite blends the three signals with w. Histories shorter than MinPoints, and any
// blend that is not finite, return Unscored.
func Composite(closes []float64, w model.Weights) float64 {
	if len(closes) < MinPoints {
		return Unscored
	}
	return blend(SlopeScore(closes), MomentumScore(closes), RecentReturn(closes), w)
}

// Score computes the composite and its breakdown for one symbol
func Score(symbol string, series model.PriceSeries, w model.Weights) model.ScoreResult {
	closes := series.Closes()
	result := model.ScoreResult{
		Symbol:    symbol,
		Composite: Unscored,
		Points:    len(closes),
	}
	if rsi, ok := indicator.RSI(closes, diagnosticRSI); ok {
		result.RSI = rsi
	}
	if len(closes) < MinPoints {
		return result
	}

	result.Trend = SlopeScore(closes)
	result.Momentum = MomentumScore(closes)
	result.Recent = RecentReturn(closes)
	result.Composite = blend(result.Trend, result.Momentum, result.Recent, w)
	return result
}

// ScoreAll scores every instrument in order. A symbol with no entry in series scores
// as an empty history.
func ScoreAll(instruments []model.Instrument, series map[string]model.PriceSeries, w model.Weights) []model.ScoreResult {
	results := make([]model.ScoreResult, 0, len(instruments))
	for _, inst := range instruments {
		results = append(results, Score(inst.Symbol, series[inst.Symbol], w))
	}
	return results
}

func blend(trend, momentum, recent float64, w model.Weights) float64 {
	c := w.Slope*trend + w.Momentum*momentum + w.Recent*recent
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return Unscored
	}
	return c
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
