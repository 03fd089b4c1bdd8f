package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// DefaultCacheTTL matches the five minute shared-cache lifetime of the series endpoint
const DefaultCacheTTL = 5 * time.Minute

type cachedSeries struct {
	series    model.PriceSeries
	fetchedAt time.Time
}

// CachingProvider wraps a Provider with an in-memory TTL cache for FetchSeries.
// Quotes are always fetched live.
type CachingProvider struct {
	inner Provider
	ttl   time.Duration
	cache map[string]cachedSeries
	mu    sync.Mutex
	now   func() time.Time
}

// NewCachingProvider creates a caching wrapper. ttl <= 0 uses DefaultCacheTTL.
func NewCachingProvider(inner Provider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingProvider{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cachedSeries),
		now:   time.Now,
	}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *CachingProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return p.inner.FetchQuote(ctx, symbol)
}

// FetchSeries serves a cached copy while it is fresh. Errors are not cached.
func (p *CachingProvider) FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error) {
	p.mu.Lock()
	if entry, ok := p.cache[symbol]; ok && p.now().Sub(entry.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return clone(entry.series), nil
	}
	p.mu.Unlock()

	series, err := p.inner.FetchSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[symbol] = cachedSeries{series: clone(series), fetchedAt: p.now()}
	p.mu.Unlock()

	return series, nil
}

// Invalidate drops every cached series
func (p *CachingProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cachedSeries)
}

func clone(s model.PriceSeries) model.PriceSeries {
	if s == nil {
		return nil
	}
	out := make(model.PriceSeries, len(s))
	copy(out, s)
	return out
}
