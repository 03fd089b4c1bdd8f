package symbols

import (
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Universe names a predefined instrument set
type Universe string

const (
	UniverseDefault Universe = "default"
	UniverseETF     Universe = "etf"
	UniverseMega    Universe = "mega"
)

// Universes lists the predefined sets in display order
var Universes = []Universe{UniverseDefault, UniverseETF, UniverseMega}

// GetUniverse returns a copy of the instruments in u, or nil for an unknown name
func GetUniverse(u Universe) []model.Instrument {
	var src []model.Instrument
	switch u {
	case UniverseDefault:
		src = DefaultInstruments
	case UniverseETF:
		src = ETFInstruments
	case UniverseMega:
		src = MegaCapInstruments
	default:
		return nil
	}
	out := make([]model.Instrument, len(src))
	copy(out, src)
	return out
}

// Default returns the stock tracked set
func Default() []model.Instrument {
	return GetUniverse(UniverseDefault)
}

// DefaultInstruments is the tracked set used when nothing else is configured
var DefaultInstruments = []model.Instrument{
	{Symbol: "VOO", Name: "Vanguard S&P 500 ETF"},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Class B"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
}

// ETFInstruments is a broad-market ETF set
var ETFInstruments = []model.Instrument{
	{Symbol: "VOO", Name: "Vanguard S&P 500 ETF"},
	{Symbol: "VTI", Name: "Vanguard Total Stock Market ETF"},
	{Symbol: "QQQ", Name: "Invesco QQQ Trust"},
	{Symbol: "SCHD", Name: "Schwab U.S. Dividend Equity ETF"},
	{Symbol: "VXUS", Name: "Vanguard Total International Stock ETF"},
}

// MegaCapInstruments is a handful of the largest US listings
var MegaCapInstruments = []model.Instrument{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
	{Symbol: "AMZN", Name: "Amazon.com, Inc."},
	{Symbol: "GOOGL", Name: "Alphabet Inc. Class A"},
	{Symbol: "META", Name: "Meta Platforms, Inc."},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Class B"},
}

// knownNames maps every symbol in the predefined sets to its display name
var knownNames = func() map[string]string {
	names := make(map[string]string)
	for _, set := range [][]model.Instrument{DefaultInstruments, ETFInstruments, MegaCapInstruments} {
		for _, inst := range set {
			names[inst.Symbol] = inst.Name
		}
	}
	return names
}()

// NameFor returns the display name of a known symbol, or the symbol itself
func NameFor(symbol string) string {
	if name, ok := knownNames[symbol]; ok {
		return name
	}
	return symbol
}
