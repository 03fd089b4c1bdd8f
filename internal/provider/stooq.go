package provider

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rdavidhalljr/weekly-allocator/internal/ratelimit"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

const stooqBaseURL = "https://stooq.com/q/d/l/"

// StooqProvider reads daily history from Stooq's keyless CSV download. Stooq has no
// live quote endpoint.
type StooqProvider struct {
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewStooqProvider creates a new Stooq provider
func NewStooqProvider(rateLimitPerMin int) *StooqProvider {
	return newStooq(ratelimit.NewLimiter("stooq", rateLimitPerMin))
}

func newStooq(limiter *ratelimit.Limiter) *StooqProvider {
	return &StooqProvider{
		baseURL:   stooqBaseURL,
		client:    newHTTPClient(),
		limiter:   limiter,
		rateLimit: limiter.PerMinute(),
	}
}

// Name returns the provider name
func (p *StooqProvider) Name() string {
	return "stooq"
}

// IsAvailable always returns true (no API key needed)
func (p *StooqProvider) IsAvailable() bool {
	return true
}

// RateLimit returns the rate limit per minute
func (p *StooqProvider) RateLimit() int {
	return p.rateLimit
}

// StooqSymbol maps a US ticker to Stooq's form: lower case, share class dot as dash,
// ".us" suffix (BRK.B becomes brk-b.us)
func StooqSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, ".us") {
		return s
	}
	return strings.ReplaceAll(s, ".", "-") + ".us"
}

// FetchSeries downloads the daily CSV and keeps rows with a numeric close
func (p *StooqProvider) FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error) {
	q := url.Values{}
	q.Set("s", StooqSymbol(symbol))
	q.Set("i", "d")

	body, err := get(ctx, p.client, p.limiter, p.Name(), p.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	points, err := parseStooqCSV(body)
	if err != nil {
		return nil, shapeError(p.Name(), err)
	}
	return NormalizeSeries(points), nil
}

// FetchQuote returns the absent quote
func (p *StooqProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return model.NoQuote(), nil
}

func parseStooqCSV(body []byte) ([]model.PricePoint, error) {
	trimmed := bytes.TrimSpace(body)
	// unknown symbols come back as a bare "No data" line
	if len(trimmed) == 0 || bytes.EqualFold(trimmed, []byte("no data")) {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(trimmed))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	dateCol, closeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("csv header %q lacks Date/Close", strings.Join(header, ","))
	}

	var points []model.PricePoint
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(rec) <= dateCol || len(rec) <= closeCol {
			continue
		}
		d, err := time.Parse(model.DateLayout, strings.TrimSpace(rec[dateCol]))
		if err != nil {
			continue
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			continue
		}
		points = append(points, model.PricePoint{Date: d, Close: c})
	}
	return points, nil
}
