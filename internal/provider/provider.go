package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Provider defines the interface for price data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// FetchSeries fetches the daily close history for a symbol, oldest first
	FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error)

	// FetchQuote fetches the live quote. A provider without live quotes returns the
	// absent quote and no error.
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)

	// IsAvailable checks if the provider can serve requests (has its API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// Error kinds, matched with errors.Is
var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrUpstreamRequest     = errors.New("upstream request failed")
	ErrUpstreamShape       = errors.New("unexpected upstream response")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Kind      error // one of the Err* kinds above
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRetryable reports whether err is a ProviderError marked retryable
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider creates a new fallback provider
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	// Filter to only available providers
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// Name returns the primary provider's name
func (f *FallbackProvider) Name() string {
	if len(f.providers) == 0 {
		return "none"
	}
	return f.providers[0].Name()
}

// FetchSeries returns the first successful series
func (f *FallbackProvider) FetchSeries(ctx context.Context, symbol string) (model.PriceSeries, error) {
	var errs []error
	for _, p := range f.providers {
		series, err := p.FetchSeries(ctx, symbol)
		if err == nil {
			return series, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, &ProviderError{Provider: f.Name(), Kind: ErrUnsupportedProvider}
	}
	return nil, errors.Join(errs...)
}

// FetchQuote returns the first successful quote
func (f *FallbackProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var errs []error
	for _, p := range f.providers {
		q, err := p.FetchQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return model.NoQuote(), &ProviderError{Provider: f.Name(), Kind: ErrUnsupportedProvider}
	}
	return model.NoQuote(), errors.Join(errs...)
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the primary provider's rate limit
func (f *FallbackProvider) RateLimit() int {
	if len(f.providers) == 0 {
		return 0
	}
	return f.providers[0].RateLimit()
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}
