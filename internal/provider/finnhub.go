package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rdavidhalljr/weekly-allocator/internal/ratelimit"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

const (
	finnhubBaseURL = "https://finnhub.io/api/v1"

	// history window requested from the candle endpoint
	finnhubLookback = 400 * 24 * time.Hour
)

// FinnhubProvider implements the Provider interface for Finnhub API
type FinnhubProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
	now       func() time.Time
}

// NewFinnhubProvider creates a new Finnhub provider
func NewFinnhubProvider(apiKey string, rateLimitPerMin int) *FinnhubProvider {
	return newFinnhub(apiKey, ratelimit.NewLimiter("finnhub", rateLimitPerMin))
}

func newFinnhub(apiKey string, limiter *ratelimit.Limiter) *FinnhubProvider {
	return &FinnhubProvider{
		apiKey:    apiKey,
		baseURL:   finnhubBaseURL,
		client:    newHTTPClient(),
		limiter:   limiter,
		rateLimit: limiter.PerMinute(),
		now:       time.Now,
	}
}

// Name returns the provider name
func (p *FinnhubProvider) Name() string {
	return "finnhub"
}

// IsAvailable checks if the provider has an API key
func (p *FinnhubProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *FinnhubProvider) RateLimit() int {
	return p.rateLimit
}

// finnhubCandle represents the Finnhub candle response
type finnhubCandle struct {
	C []float64 `json:"c"` // Close prices
	S string    `json:"s"` // Status
	T []int64   `json:"t"` // Timestamps
}

// finnhubQuote represents the Finnhub quote response
type finnhubQuote struct {
	C float64 `json:"c"` // Current price
	T int64   `json:"t"` // Unix timestamp
}

// FetchSeries fetches about 400 days of daily closes
func (p *FinnhubProvider) FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error) {
	if !p.IsAvailable() {
		return nil, missingKey(p.Name(), "FINNHUB_API_KEY")
	}

	now := p.now()
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", "D")
	q.Set("from", fmt.Sprint(now.Add(-finnhubLookback).Unix()))
	q.Set("to", fmt.Sprint(now.Unix()))
	q.Set("token", p.apiKey)

	body, err := get(ctx, p.client, p.limiter, p.Name(), p.baseURL+"/stock/candle?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var data finnhubCandle
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, shapeError(p.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if data.S != "ok" {
		return nil, shapeError(p.Name(), fmt.Errorf("candle status %q", data.S))
	}

	n := len(data.T)
	if len(data.C) < n {
		n = len(data.C)
	}
	points := make([]model.PricePoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, model.PricePoint{
			Date:  time.Unix(data.T[i], 0).UTC(),
			Close: data.C[i],
		})
	}
	return NormalizeSeries(points), nil
}

// FetchQuote fetches the current price. Finnhub answers unknown symbols with zeros,
// which maps to the absent quote.
func (p *FinnhubProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if !p.IsAvailable() {
		return model.NoQuote(), missingKey(p.Name(), "FINNHUB_API_KEY")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", p.apiKey)

	body, err := get(ctx, p.client, p.limiter, p.Name(), p.baseURL+"/quote?"+q.Encode())
	if err != nil {
		return model.NoQuote(), err
	}

	var data finnhubQuote
	if err := json.Unmarshal(body, &data); err != nil {
		return model.NoQuote(), shapeError(p.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if data.C == 0 && data.T == 0 {
		return model.NoQuote(), nil
	}

	var ts time.Time
	if data.T != 0 {
		ts = time.Unix(data.T, 0).UTC()
	}
	return model.NewQuote(data.C, ts), nil
}
