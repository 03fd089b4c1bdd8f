package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/internal/recorder"
	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

func series(n int, start, step float64) model.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.PriceSeries, n)
	for i := range s {
		s[i] = model.PricePoint{Date: base.AddDate(0, 0, i), Close: start + float64(i)*step}
	}
	return s
}

type fakeProvider struct {
	name   string
	series map[string]model.PriceSeries
	quotes map[string]model.Quote
	err    error
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) RateLimit() int    { return 0 }

func (f *fakeProvider) FetchSeries(_ context.Context, symbol string) (model.PriceSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series[symbol], nil
}

func (f *fakeProvider) FetchQuote(_ context.Context, symbol string) (model.Quote, error) {
	if f.err != nil {
		return model.NoQuote(), f.err
	}
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return model.NoQuote(), nil
}

type fakeHistory struct {
	cycles []recorder.CycleSummary
	points map[string][]recorder.ScorePoint
	symbol string
	limit  int
	err    error
}

func (f *fakeHistory) RecentCycles(limit int) ([]recorder.CycleSummary, error) {
	f.limit = limit
	return f.cycles, f.err
}

func (f *fakeHistory) SymbolHistory(symbol string, limit int) ([]recorder.ScorePoint, error) {
	f.symbol = symbol
	f.limit = limit
	return f.points[symbol], f.err
}

func newTestServer(t *testing.T, history History) (*Server, *fakeProvider) {
	t.Helper()
	fake := &fakeProvider{
		name: "stooq",
		series: map[string]model.PriceSeries{
			"VOO":  series(30, 100, 1),
			"NVDA": series(30, 200, -1),
		},
		quotes: map[string]model.Quote{
			"VOO": model.NewQuote(131.5, time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)),
		},
	}
	instruments := []model.Instrument{{Symbol: "VOO"}, {Symbol: "BRK.B"}, {Symbol: "NVDA"}}
	runner := refresh.NewRunner(fake, instruments, model.DefaultWeights(), refresh.Options{Workers: 2}, nil, nil)

	cfg := config.DefaultConfig()
	cfg.API.Finnhub.Key = ""
	cfg.API.AlphaVantage.Key = ""
	s := NewServer(cfg, runner, history, nil)
	s.newProvider = func(name string) (provider.Provider, error) {
		if name == "stooq" {
			return fake, nil
		}
		return provider.New(name, cfg)
	}
	return s, fake
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestSeriesEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/series?symbol=voo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, seriesCacheControl, rec.Header().Get("Cache-Control"))

	var body struct {
		OK     bool              `json:"ok"`
		Series model.PriceSeries `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	require.Len(t, body.Series, 30)
	assert.Equal(t, 100.0, body.Series[0].Close)

	// unknown symbol: empty series, not null
	rec = do(t, h, http.MethodGet, "/api/series?provider=stooq&symbol=QQQ", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"series":[]`)
}

func TestSeriesEndpointErrors(t *testing.T) {
	s, fake := newTestServer(t, nil)
	h := s.Router()

	tests := []struct {
		name   string
		target string
		status int
		msg    string
	}{
		{"missing symbol", "/api/series", http.StatusBadRequest, "symbol required"},
		{"invalid symbol", "/api/series?symbol=..", http.StatusBadRequest, "invalid symbol"},
		{"unknown provider", "/api/series?provider=yahoo&symbol=VOO", http.StatusBadRequest, "unknown provider"},
		{"missing key", "/api/series?provider=finnhub&symbol=VOO", http.StatusBadRequest, "FINNHUB_API_KEY not set"},
		{"missing key quote", "/api/quote?provider=alphavantage&symbol=VOO", http.StatusBadRequest, "ALPHAVANTAGE_API_KEY not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}

	fake.err = &provider.ProviderError{Provider: "stooq", Kind: provider.ErrUpstreamRequest, Err: errors.New("status 503")}
	rec := do(t, h, http.MethodGet, "/api/series?symbol=VOO", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec), "status 503")
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestQuoteEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/quote?symbol=VOO", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"quote":{"price":131.5,"ts":"2026-10-19T15:00:00Z"}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/quote?symbol=NVDA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"quote":{"price":null,"ts":null}}`, rec.Body.String())
}

func TestRankingLifecycle(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/ranking", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/ranking", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		ID     string `json:"id"`
		Result struct {
			Recommendation    string `json:"recommendation"`
			HasRecommendation bool   `json:"has_recommendation"`
			Ranking           []struct {
				Position int    `json:"position"`
				Symbol   string `json:"symbol"`
			} `json:"ranking"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.ID)
	assert.True(t, snap.Result.HasRecommendation)
	assert.Equal(t, "VOO", snap.Result.Recommendation)
	require.Len(t, snap.Result.Ranking, 2)
	assert.Equal(t, "NVDA", snap.Result.Ranking[1].Symbol)
}

func TestWeightsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/weights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"slope":0.5,"momentum":0.35,"recent":0.15}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/weights", `{"slope":0,"momentum":0,"recent":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Weights{Recent: 1}, s.runner.Weights())

	rec = do(t, h, http.MethodPut, "/api/weights", `{"slope":2,"momentum":0,"recent":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.Weights{Recent: 1}, s.runner.Weights())

	rec = do(t, h, http.MethodPut, "/api/weights", `{"trend":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/weights", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	started := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	hist := &fakeHistory{cycles: []recorder.CycleSummary{
		{ID: "b", StartedAt: started.Add(time.Hour), Provider: "stooq", Recommendation: "VOO"},
		{ID: "a", StartedAt: started, Provider: "stooq"},
	}}
	s, _ := newTestServer(t, hist)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistory, hist.limit)

	var got []recorder.CycleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/history?limit=%d", maxHistory+1), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistory, hist.limit)

	rec = do(t, h, http.MethodGet, "/api/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("disk full")
	rec = do(t, h, http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryWithoutRecorder(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Router(), http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestProvidersEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Router(), http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []ProviderInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, ProviderInfo{Name: "stooq", Available: true, Active: true}, got[0])
	assert.Equal(t, ProviderInfo{Name: "finnhub", RequiresKey: true}, got[1])
}

func TestMethodAndPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodDelete, "/api/weights", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodOptions, "/api/weights", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSymbolHistoryEndpoint(t *testing.T) {
	at := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	hist := &fakeHistory{points: map[string][]recorder.ScorePoint{
		"BRK.B": {{At: at, Composite: 0.42, Position: 1}},
	}}
	s, _ := newTestServer(t, hist)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/history/brk.b?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BRK.B", hist.symbol)
	assert.Equal(t, 5, hist.limit)

	var got []recorder.ScorePoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 0.42, got[0].Composite)

	rec = do(t, h, http.MethodGet, "/api/history/VOO", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/history/-VOO", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("disk full")
	rec = do(t, h, http.MethodGet, "/api/history/VOO", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefreshSurvivesClientDisconnect(t *testing.T) {
	s, _ := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	snap, ok := s.runner.Latest()
	require.True(t, ok)
	assert.True(t, snap.Result.HasRecommendation)
	assert.Equal(t, "VOO", snap.Result.Recommendation)
	assert.Empty(t, snap.Failures)
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start(0) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}
