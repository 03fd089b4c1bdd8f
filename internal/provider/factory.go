package provider

import (
	"fmt"

	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/ratelimit"
)

// limiters is shared by every provider built through New so that the refresh loop and
// the HTTP API draw from one budget per upstream
var limiters = ratelimit.NewRegistry()

// Names lists the supported provider names
func Names() []string {
	return append([]string(nil), config.KnownProviders...)
}

// RequiresKey reports whether the named provider needs an API key
func RequiresKey(name string) bool {
	return config.KeyEnv(name) != ""
}

// New builds the named provider from cfg. Keyed providers without a key fail with
// ErrMissingCredential.
func New(name string, cfg *config.Config) (Provider, error) {
	switch name {
	case "stooq":
		p := newStooq(limiters.Get(name, cfg.API.Stooq.RateLimit))
		if cfg.API.Stooq.BaseURL != "" {
			p.baseURL = cfg.API.Stooq.BaseURL
		}
		return p, nil
	case "finnhub":
		if cfg.API.Finnhub.Key == "" {
			return nil, missingKey(name, config.KeyEnv(name))
		}
		p := newFinnhub(cfg.API.Finnhub.Key, limiters.Get(name, cfg.API.Finnhub.RateLimit))
		if cfg.API.Finnhub.BaseURL != "" {
			p.baseURL = cfg.API.Finnhub.BaseURL
		}
		return p, nil
	case "alphavantage":
		if cfg.API.AlphaVantage.Key == "" {
			return nil, missingKey(name, config.KeyEnv(name))
		}
		p := newAlphaVantage(cfg.API.AlphaVantage.Key, limiters.Get(name, cfg.API.AlphaVantage.RateLimit))
		if cfg.API.AlphaVantage.BaseURL != "" {
			p.baseURL = cfg.API.AlphaVantage.BaseURL
		}
		return p, nil
	default:
		return nil, &ProviderError{Provider: name, Kind: ErrUnsupportedProvider, Err: fmt.Errorf("known providers: %v", config.KnownProviders)}
	}
}

// Select builds the provider the refresh loop uses. A keyed provider without its key
// falls back to Stooq; with its key it is backed by Stooq for series. The result is
// wrapped in a series cache when cfg.Refresh.CacheTTL is positive.
func Select(cfg *config.Config, log *logger.Logger) (Provider, error) {
	stooq, err := New("stooq", cfg)
	if err != nil {
		return nil, err
	}

	var selected Provider
	switch {
	case cfg.Provider == "stooq":
		selected = stooq
	case !config.IsKnownProvider(cfg.Provider):
		return nil, &ProviderError{Provider: cfg.Provider, Kind: ErrUnsupportedProvider}
	case cfg.KeyFor(cfg.Provider) == "":
		log.Warnf("%s not set, falling back to stooq", config.KeyEnv(cfg.Provider))
		selected = stooq
	default:
		primary, err := New(cfg.Provider, cfg)
		if err != nil {
			return nil, err
		}
		selected = NewFallbackProvider(primary, stooq)
	}

	if cfg.Refresh.CacheTTL > 0 {
		return NewCachingProvider(selected, cfg.Refresh.CacheTTL), nil
	}
	return selected, nil
}
