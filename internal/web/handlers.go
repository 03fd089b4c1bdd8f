package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/internal/recorder"
	"github.com/rdavidhalljr/weekly-allocator/internal/symbols"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

const (
	seriesCacheControl = "s-maxage=300, stale-while-revalidate=600"
	defaultHistory     = 20
	maxHistory         = 500
)

// ProviderInfo describes one price provider
type ProviderInfo struct {
	Name        string `json:"name"`
	RequiresKey bool   `json:"requires_key"`
	Available   bool   `json:"available"`
	Active      bool   `json:"active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if snap, ok := s.runner.Latest(); ok {
		body["last_cycle"] = snap.FinishedAt
	}
	respondJSON(w, http.StatusOK, body)
}

// handleSeries proxies a daily close history
// GET /api/series?provider=stooq&symbol=VOO
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	symbol, p, ok := s.resolveRequest(w, r)
	if !ok {
		return
	}

	series, err := p.FetchSeries(r.Context(), symbol)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Warn("series request failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if series == nil {
		series = model.PriceSeries{}
	}

	w.Header().Set("Cache-Control", seriesCacheControl)
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "series": series})
}

// handleQuote proxies a live quote; providers without live quotes answer with nulls
// GET /api/quote?provider=finnhub&symbol=NVDA
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol, p, ok := s.resolveRequest(w, r)
	if !ok {
		return
	}

	quote, err := p.FetchQuote(r.Context(), symbol)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Warn("quote request failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "quote": quote})
}

// resolveRequest validates the symbol and provider query parameters, answering 400 itself
func (s *Server) resolveRequest(w http.ResponseWriter, r *http.Request) (string, provider.Provider, bool) {
	q := r.URL.Query()
	symbol := symbols.Normalize(q.Get("symbol"))
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol required")
		return "", nil, false
	}
	if !symbols.IsValidSymbol(symbol) {
		respondError(w, http.StatusBadRequest, "invalid symbol")
		return "", nil, false
	}

	name := strings.ToLower(strings.TrimSpace(q.Get("provider")))
	p, err := s.providerFor(name)
	switch {
	case err == nil:
		return symbol, p, true
	case errors.Is(err, provider.ErrUnsupportedProvider):
		respondError(w, http.StatusBadRequest, "unknown provider")
	case errors.Is(err, provider.ErrMissingCredential):
		respondError(w, http.StatusBadRequest, config.KeyEnv(name)+" not set")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
	return "", nil, false
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	active := s.runner.Provider().Name()
	out := make([]ProviderInfo, 0, len(config.KnownProviders))
	for _, name := range provider.Names() {
		out = append(out, ProviderInfo{
			Name:        name,
			RequiresKey: provider.RequiresKey(name),
			Available:   !provider.RequiresKey(name) || s.cfg.KeyFor(name) != "",
			Active:      name == active,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleRanking returns the latest snapshot
// GET /api/ranking
func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.runner.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.runner.Weights())
}

// handlePutWeights replaces the weights; they apply from the next cycle
// PUT /api/weights {"slope":0.5,"momentum":0.35,"recent":0.15}
func (s *Server) handlePutWeights(w http.ResponseWriter, r *http.Request) {
	var weights model.Weights
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&weights); err != nil {
		respondError(w, http.StatusBadRequest, "invalid weights: "+err.Error())
		return
	}
	if err := s.runner.SetWeights(weights); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, weights)
}

// handleRefresh runs a cycle now and returns it. The cycle outlives a dropped client so a
// partial fetch never replaces the published ranking; the cycle timeout still applies.
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap := s.runner.Cycle(context.WithoutCancel(r.Context()))
	respondJSON(w, http.StatusOK, snap)
}

// handleHistory lists recorded cycles, newest first
// GET /api/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	if s.history == nil {
		respondJSON(w, http.StatusOK, []recorder.CycleSummary{})
		return
	}
	cycles, err := s.history.RecentCycles(limit)
	if err != nil {
		s.log.WithError(err).Error("history query failed")
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if cycles == nil {
		cycles = []recorder.CycleSummary{}
	}
	respondJSON(w, http.StatusOK, cycles)
}

// handleSymbolHistory lists the recorded composite scores of one symbol, newest first
// GET /api/history/NVDA?limit=20
func (s *Server) handleSymbolHistory(w http.ResponseWriter, r *http.Request) {
	symbol := symbols.Normalize(mux.Vars(r)["symbol"])
	if !symbols.IsValidSymbol(symbol) {
		respondError(w, http.StatusBadRequest, "invalid symbol")
		return
	}
	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	if s.history == nil {
		respondJSON(w, http.StatusOK, []recorder.ScorePoint{})
		return
	}
	points, err := s.history.SymbolHistory(symbol, limit)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Error("symbol history query failed")
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if points == nil {
		points = []recorder.ScorePoint{}
	}
	respondJSON(w, http.StatusOK, points)
}

// historyLimit reads ?limit=, answering 400 itself on a bad value
func historyLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultHistory, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxHistory), true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
