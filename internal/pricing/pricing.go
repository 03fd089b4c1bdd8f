package pricing

import (
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Resolve picks the price to display for a symbol. A finite live quote wins; otherwise
// the last close is used. An empty series with no quote yields a price with no value.
func Resolve(symbol string, series model.PriceSeries, quote model.Quote) model.DisplayPrice {
	if quote.Available() {
		price := *quote.Price
		dp := model.DisplayPrice{Symbol: symbol, Value: &price, Source: model.SourceQuote}
		if quote.Timestamp != nil {
			ts := *quote.Timestamp
			dp.AsOf = &ts
		}
		return dp
	}

	dp := model.DisplayPrice{Symbol: symbol, Source: model.SourceClose}
	if last, ok := series.Last(); ok {
		value := last.Close
		date := last.Date
		dp.Value = &value
		dp.AsOf = &date
	}
	return dp
}

// ResolveAll resolves display prices for instruments in order. Missing map entries are
// treated as an empty series and an absent quote.
func ResolveAll(instruments []model.Instrument, series map[string]model.PriceSeries, quotes map[string]model.Quote) []model.DisplayPrice {
	prices := make([]model.DisplayPrice, 0, len(instruments))
	for _, inst := range instruments {
		prices = append(prices, Resolve(inst.Symbol, series[inst.Symbol], quotes[inst.Symbol]))
	}
	return prices
}
