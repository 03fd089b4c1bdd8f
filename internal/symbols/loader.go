package symbols

import (
	"fmt"
	"strings"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Normalize upper-cases and trims a ticker
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValidSymbol accepts tickers of 1-10 letters and digits, with '.' or '-' share class
// separators that are not leading or trailing (BRK.B, BF-B)
func IsValidSymbol(symbol string) bool {
	if len(symbol) == 0 || len(symbol) > 10 {
		return false
	}
	for i, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.' || c == '-':
			if i == 0 || i == len(symbol)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ParseList parses a comma-separated symbol list such as "voo, brk.b,NVDA".
// Empty items are skipped and duplicates keep their first position.
func ParseList(list string) ([]model.Instrument, error) {
	var out []model.Instrument
	seen := make(map[string]bool)
	for _, raw := range strings.Split(list, ",") {
		sym := Normalize(raw)
		if sym == "" {
			continue
		}
		if !IsValidSymbol(sym) {
			return nil, fmt.Errorf("invalid symbol %q", strings.TrimSpace(raw))
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, model.Instrument{Symbol: sym, Name: NameFor(sym)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols in %q", list)
	}
	return out, nil
}

// Resolve picks the instrument set: an explicit list wins, then a universe name, then the
// configured instruments, then the default set
func Resolve(list string, universe string, configured []model.Instrument) ([]model.Instrument, error) {
	if strings.TrimSpace(list) != "" {
		return ParseList(list)
	}
	if universe != "" {
		insts := GetUniverse(Universe(strings.ToLower(universe)))
		if insts == nil {
			return nil, fmt.Errorf("unknown universe %q", universe)
		}
		return insts, nil
	}
	if len(configured) > 0 {
		out := make([]model.Instrument, len(configured))
		for i, inst := range configured {
			out[i] = model.Instrument{Symbol: Normalize(inst.Symbol), Name: inst.Name}
			if out[i].Name == "" {
				out[i].Name = NameFor(out[i].Symbol)
			}
		}
		return out, nil
	}
	return Default(), nil
}
