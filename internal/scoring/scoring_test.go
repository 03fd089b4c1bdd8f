package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func seriesOf(closes []float64) model.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		s[i] = model.PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return s
}

func TestShortHistories(t *testing.T) {
	for n := 0; n < MinPoints; n++ {
		closes := linear(n, 100, 1)
		if got := SlopeScore(closes); got != 0 {
			t.Errorf("SlopeScore with %d points: expected 0, got %v", n, got)
		}
		if got := Composite(closes, model.DefaultWeights()); !math.IsInf(got, -1) {
			t.Errorf("Composite with %d points: expected -Inf, got %v", n, got)
		}
	}
	for n := 0; n < 21; n++ {
		if got := MomentumScore(linear(n, 100, 1)); got != 0 {
			t.Errorf("MomentumScore with %d points: expected 0, got %v", n, got)
		}
	}
}

func TestSlopeScore(t *testing.T) {
	assert.Equal(t, 0.0, SlopeScore([]float64{5, 5, 5, 5, 5, 5}))
	assert.Greater(t, SlopeScore(linear(30, 10, 1)), 0.0)
	assert.Less(t, SlopeScore(linear(30, 100, -1)), 0.0)

	// only the last 20 closes count
	noisyHead := append(linear(10, 500, -37), linear(20, 10, 1)...)
	assert.InDelta(t, SlopeScore(linear(20, 10, 1)), SlopeScore(noisyHead), 1e-12)
}

func TestFlatSeriesHasNoTrend(t *testing.T) {
	for _, v := range []float64{100.1, 412.37, 1234.56} {
		for _, n := range []int{7, 20} {
			closes := linear(n, v, 0)
			if got := SlopeScore(closes); got != 0 {
				t.Errorf("SlopeScore of %d x %v: expected 0, got %v", n, v, got)
			}
		}
		closes := linear(30, v, 0)
		assert.InDelta(t, 0.0, Composite(closes, model.DefaultWeights()), 1e-12)
	}

	// a flat symbol ranks below one with a real upward drift
	flat := Composite(linear(30, 1234.56, 0), model.DefaultWeights())
	rising := Composite(linear(30, 100, 0.05), model.DefaultWeights())
	assert.Greater(t, rising, flat)
}

func TestMomentumScore(t *testing.T) {
	assert.Equal(t, 0.0, MomentumScore(linear(40, 50, 0)))
	assert.Greater(t, MomentumScore(linear(40, 50, 1)), 0.0)
	assert.Less(t, MomentumScore(linear(40, 100, -1)), 0.0)

	// zero baseline falls back to dividing by 1
	assert.Equal(t, 0.0, MomentumScore(make([]float64, 25)))
}

func TestRecentReturn(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{10}, 0},
		{"last five only", []float64{1, 1, 100, 101, 102, 103, 110}, 0.1},
		{"short window", []float64{50, 55}, 0.1},
		{"zero first", []float64{0, 1, 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RecentReturn(tt.closes), 1e-12)
		})
	}
}

func TestCompositeRisingBeatsFalling(t *testing.T) {
	w := model.Weights{Slope: 0.5, Momentum: 0.35, Recent: 0.15}
	for _, n := range []int{25, 40, 120} {
		rising := Composite(linear(n, 100, 0.5), w)
		falling := Composite(linear(n, 200, -0.5), w)
		if !(rising > falling) {
			t.Errorf("n=%d: expected rising %v > falling %v", n, rising, falling)
		}
	}
}

func TestCompositeWeighting(t *testing.T) {
	closes := linear(30, 100, 1)
	trend := SlopeScore(closes)
	mom := MomentumScore(closes)
	rec := RecentReturn(closes)

	got := Composite(closes, model.Weights{Slope: 1})
	assert.InDelta(t, trend, got, 1e-12)

	got = Composite(closes, model.Weights{Slope: 0.2, Momentum: 0.3, Recent: 0.9})
	assert.InDelta(t, 0.2*trend+0.3*mom+0.9*rec, got, 1e-12)

	assert.Equal(t, 0.0, Composite(closes, model.Weights{}))
}

func TestCompositeNonFiniteCollapses(t *testing.T) {
	closes := linear(30, 100, 1)
	assert.True(t, math.IsInf(Composite(closes, model.Weights{Slope: math.NaN()}), -1))
	assert.True(t, math.IsInf(Composite(closes, model.Weights{Recent: math.Inf(1)}), -1))
}

func TestCompositeIdempotent(t *testing.T) {
	closes := []float64{101.2, 99.8, 102.5, 103.1, 100.4, 104.9, 106.2, 105.5, 107.8, 109.1,
		108.4, 110.0, 111.3, 109.9, 112.6, 113.1, 112.2, 114.8, 115.5, 116.1, 117.9, 116.4}
	w := model.DefaultWeights()
	a := Composite(closes, w)
	b := Composite(closes, w)
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Errorf("Expected identical results, got %v and %v", a, b)
	}
}

func TestScore(t *testing.T) {
	closes := linear(30, 100, 1)
	r := Score("VOO", seriesOf(closes), model.DefaultWeights())

	assert.Equal(t, "VOO", r.Symbol)
	assert.Equal(t, 30, r.Points)
	assert.True(t, r.Scoreable())
	assert.Equal(t, Composite(closes, model.DefaultWeights()), r.Composite)
	assert.Equal(t, SlopeScore(closes), r.Trend)
	assert.Greater(t, r.RSI, 0.0)

	short := Score("NVDA", seriesOf([]float64{1, 2}), model.DefaultWeights())
	assert.False(t, short.Scoreable())
	assert.Equal(t, 2, short.Points)
}

func TestScoreAllPreservesOrder(t *testing.T) {
	instruments := []model.Instrument{{Symbol: "NVDA"}, {Symbol: "VOO"}, {Symbol: "BRK.B"}}
	series := map[string]model.PriceSeries{
		"VOO":  seriesOf(linear(30, 400, 1)),
		"NVDA": seriesOf(linear(30, 100, 2)),
	}

	results := ScoreAll(instruments, series, model.DefaultWeights())
	require.Len(t, results, 3)
	assert.Equal(t, "NVDA", results[0].Symbol)
	assert.Equal(t, "VOO", results[1].Symbol)
	assert.Equal(t, "BRK.B", results[2].Symbol)
	assert.False(t, results[2].Scoreable())
	assert.Equal(t, 0, results[2].Points)
}
