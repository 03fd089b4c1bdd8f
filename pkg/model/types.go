package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DateLayout is the day-precision layout used for price dates on the wire
const DateLayout = "2006-01-02"

// Instrument is a tracked tradable symbol
type Instrument struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// PricePoint is a single daily close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type pricePointJSON struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// MarshalJSON renders the date at day precision, e.g. {"date":"2024-01-05","close":101.2}
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricePointJSON{Date: p.Date.Format(DateLayout), Close: p.Close})
}

// UnmarshalJSON accepts the day-precision form produced by MarshalJSON
func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var raw pricePointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("parsing price date %q: %w", raw.Date, err)
	}
	p.Date = d
	p.Close = raw.Close
	return nil
}

// PriceSeries is one symbol's closes in ascending date order with no duplicate dates.
// It may be empty.
type PriceSeries []PricePoint

// Len returns the number of points
func (s PriceSeries) Len() int {
	return len(s)
}

// Closes extracts the close values in order
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Last returns the most recent point
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Quote is an optional live price. A nil Price means no live quote is available,
// which is an expected state rather than an error.
type Quote struct {
	Price     *float64   `json:"price"`
	Timestamp *time.Time `json:"ts"`
}

// NoQuote returns the absent quote
func NoQuote() Quote {
	return Quote{}
}

// NewQuote builds a quote. Non-finite prices normalize to the absent quote and a zero
// timestamp is treated as absent.
func NewQuote(price float64, ts time.Time) Quote {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return NoQuote()
	}
	q := Quote{Price: &price}
	if !ts.IsZero() {
		q.Timestamp = &ts
	}
	return q
}

// Available reports whether the quote carries a finite price
func (q Quote) Available() bool {
	return q.Price != nil && !math.IsNaN(*q.Price) && !math.IsInf(*q.Price, 0)
}

// Weights controls the composite score. Each weight is expected in [0,1]; they are not
// required to sum to 1.
type Weights struct {
	Slope    float64 `json:"slope" yaml:"slope"`
	Momentum float64 `json:"momentum" yaml:"momentum"`
	Recent   float64 `json:"recent" yaml:"recent"`
}

// DefaultWeights returns the stock weighting: trend 0.5, momentum 0.35, 5-day return 0.15
func DefaultWeights() Weights {
	return Weights{Slope: 0.5, Momentum: 0.35, Recent: 0.15}
}

// Validate checks each weight is finite and within [0,1]
func (w Weights) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{{"slope", w.Slope}, {"momentum", w.Momentum}, {"recent", w.Recent}}
	for _, f := range fields {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("weight %s must be within [0,1], got %v", f.name, f.v)
		}
	}
	return nil
}

// ScoreResult is one symbol's score for one ranking pass
type ScoreResult struct {
	Symbol    string  `json:"symbol"`
	Composite float64 `json:"composite"` // -Inf when the series is too short to score
	Trend     float64 `json:"trend"`
	Momentum  float64 `json:"momentum"`
	Recent    float64 `json:"recent"`
	Points    int     `json:"points"`
	RSI       float64 `json:"rsi,omitempty"`
}

// Scoreable reports whether the composite is a finite, rankable value
func (r ScoreResult) Scoreable() bool {
	return !math.IsNaN(r.Composite) && !math.IsInf(r.Composite, 0)
}

type scoreResultJSON struct {
	Symbol    string   `json:"symbol"`
	Composite *float64 `json:"composite"`
	Trend     float64  `json:"trend"`
	Momentum  float64  `json:"momentum"`
	Recent    float64  `json:"recent"`
	Points    int      `json:"points"`
	RSI       float64  `json:"rsi,omitempty"`
}

// MarshalJSON writes an unscoreable composite as null; encoding/json rejects infinities
func (r ScoreResult) MarshalJSON() ([]byte, error) {
	out := scoreResultJSON{
		Symbol:   r.Symbol,
		Trend:    r.Trend,
		Momentum: r.Momentum,
		Recent:   r.Recent,
		Points:   r.Points,
		RSI:      r.RSI,
	}
	if r.Scoreable() {
		c := r.Composite
		out.Composite = &c
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a null composite as the -Inf sentinel
func (r *ScoreResult) UnmarshalJSON(data []byte) error {
	var raw scoreResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ScoreResult{
		Symbol:    raw.Symbol,
		Composite: math.Inf(-1),
		Trend:     raw.Trend,
		Momentum:  raw.Momentum,
		Recent:    raw.Recent,
		Points:    raw.Points,
		RSI:       raw.RSI,
	}
	if raw.Composite != nil {
		r.Composite = *raw.Composite
	}
	return nil
}

// PriceSource says where a display price came from
type PriceSource string

const (
	SourceQuote PriceSource = "quote"
	SourceClose PriceSource = "close"
)

// DisplayPrice is the price shown for a symbol: a live quote when available, else the last close.
// AsOf is the quote time, or the close's calendar date.
type DisplayPrice struct {
	Symbol string      `json:"symbol"`
	Value  *float64    `json:"value"`
	Source PriceSource `json:"source"`
	AsOf   *time.Time  `json:"as_of"`
}

type displayPriceJSON struct {
	Symbol string      `json:"symbol"`
	Value  *float64    `json:"value"`
	Source PriceSource `json:"source"`
	AsOf   *string     `json:"as_of"`
}

// MarshalJSON writes a close-sourced AsOf as a day-precision date and a quote time as RFC 3339
func (d DisplayPrice) MarshalJSON() ([]byte, error) {
	out := displayPriceJSON{Symbol: d.Symbol, Value: d.Value, Source: d.Source}
	if d.AsOf != nil {
		var s string
		if d.Source == SourceClose {
			s = d.AsOf.Format(DateLayout)
		} else {
			s = d.AsOf.Format(time.RFC3339Nano)
		}
		out.AsOf = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either AsOf form written by MarshalJSON
func (d *DisplayPrice) UnmarshalJSON(data []byte) error {
	var raw displayPriceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = DisplayPrice{Symbol: raw.Symbol, Value: raw.Value, Source: raw.Source}
	if raw.AsOf == nil {
		return nil
	}
	layout := time.RFC3339Nano
	if len(*raw.AsOf) == len(DateLayout) {
		layout = DateLayout
	}
	t, err := time.Parse(layout, *raw.AsOf)
	if err != nil {
		return fmt.Errorf("parsing as_of %q: %w", *raw.AsOf, err)
	}
	d.AsOf = &t
	return nil
}

// HasValue reports whether a price could be resolved
func (d DisplayPrice) HasValue() bool {
	return d.Value != nil
}
