package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rdavidhalljr/weekly-allocator/internal/ratelimit"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageProvider implements the Provider interface for Alpha Vantage API
type AlphaVantageProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewAlphaVantageProvider creates a new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, rateLimitPerMin int) *AlphaVantageProvider {
	return newAlphaVantage(apiKey, ratelimit.NewLimiter("alphavantage", rateLimitPerMin))
}

func newAlphaVantage(apiKey string, limiter *ratelimit.Limiter) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:    apiKey,
		baseURL:   alphaVantageBaseURL,
		client:    newHTTPClient(),
		limiter:   limiter,
		rateLimit: limiter.PerMinute(),
	}
}

// Name returns the provider name
func (p *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

// IsAvailable checks if the provider has an API key
func (p *AlphaVantageProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *AlphaVantageProvider) RateLimit() int {
	return p.rateLimit
}

// alphaVantageStatus carries the fields Alpha Vantage uses for errors and throttling,
// always with a 200 status
type alphaVantageStatus struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
	Error       string `json:"Error Message"`
}

type alphaVantageDaily struct {
	alphaVantageStatus
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
}

type alphaVantageGlobalQuote struct {
	alphaVantageStatus
	Quote map[string]string `json:"Global Quote"`
}

func (p *AlphaVantageProvider) query(ctx context.Context, function, symbol string, extra url.Values) ([]byte, error) {
	if !p.IsAvailable() {
		return nil, missingKey(p.Name(), "ALPHAVANTAGE_API_KEY")
	}

	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("function", function)
	q.Set("symbol", symbol)
	q.Set("apikey", p.apiKey)

	return get(ctx, p.client, p.limiter, p.Name(), p.baseURL+"?"+q.Encode())
}

func (p *AlphaVantageProvider) checkStatus(s alphaVantageStatus) error {
	if msg := firstNonEmpty(s.Note, s.Information); msg != "" {
		p.limiter.SignalRateLimited()
		return &ProviderError{Provider: p.Name(), Kind: ErrUpstreamRequest, Err: fmt.Errorf("rate limited: %s", msg), Retryable: true}
	}
	if s.Error != "" {
		return shapeError(p.Name(), fmt.Errorf("%s", s.Error))
	}
	return nil
}

// FetchSeries fetches the compact (about 100 sessions) daily adjusted series
func (p *AlphaVantageProvider) FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error) {
	body, err := p.query(ctx, "TIME_SERIES_DAILY_ADJUSTED", symbol, url.Values{"outputsize": {"compact"}})
	if err != nil {
		return nil, err
	}

	var data alphaVantageDaily
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, shapeError(p.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if err := p.checkStatus(data.alphaVantageStatus); err != nil {
		return nil, err
	}
	if data.TimeSeries == nil {
		return nil, shapeError(p.Name(), fmt.Errorf("missing daily time series"))
	}

	points := make([]model.PricePoint, 0, len(data.TimeSeries))
	for dateStr, values := range data.TimeSeries {
		d, err := time.Parse(model.DateLayout, dateStr)
		if err != nil {
			continue
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(values["4. close"]), 64)
		if err != nil {
			continue
		}
		points = append(points, model.PricePoint{Date: d, Close: c})
	}
	return NormalizeSeries(points), nil
}

// FetchQuote fetches GLOBAL_QUOTE. A missing or unparsable price is the absent quote.
func (p *AlphaVantageProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	body, err := p.query(ctx, "GLOBAL_QUOTE", symbol, nil)
	if err != nil {
		return model.NoQuote(), err
	}

	var data alphaVantageGlobalQuote
	if err := json.Unmarshal(body, &data); err != nil {
		return model.NoQuote(), shapeError(p.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if err := p.checkStatus(data.alphaVantageStatus); err != nil {
		return model.NoQuote(), err
	}

	raw := firstNonEmpty(data.Quote["05. price"], data.Quote["05. Price"], data.Quote["05. PRICE"])
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return model.NoQuote(), nil
	}

	var ts time.Time
	if d, err := time.Parse(model.DateLayout, strings.TrimSpace(data.Quote["07. latest trading day"])); err == nil {
		ts = d
	}
	return model.NewQuote(price, ts), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
