package provider

import (
	"math"
	"sort"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// NormalizeSeries truncates dates to UTC days, drops non-finite or negative closes,
// sorts ascending and collapses duplicate dates keeping the later point
func NormalizeSeries(points []model.PricePoint) model.PriceSeries {
	out := make(model.PriceSeries, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close < 0 {
			continue
		}
		out = append(out, model.PricePoint{Date: model.Day(p.Date), Close: p.Close})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	deduped := out[:0]
	for _, p := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}
