package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 2 * time.Minute
)

// Limiter paces calls to one upstream provider and backs off after the upstream
// reports throttling
type Limiter struct {
	limiter   *rate.Limiter
	name      string
	perMinute int

	mu        sync.Mutex
	backoff   time.Duration
	throttled bool
}

// NewLimiter creates a limiter allowing perMinute calls per minute.
// perMinute <= 0 means unlimited.
func NewLimiter(name string, perMinute int) *Limiter {
	l := &Limiter{
		name:      name,
		perMinute: perMinute,
		backoff:   baseBackoff,
	}
	if perMinute <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return l
	}

	// burst of a tenth of the minute budget, between 1 and 5
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	l.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	return l
}

// Wait blocks until a call may proceed. A pending backoff is served first.
func (l *Limiter) Wait(ctx context.Context) error {
	if d := l.pendingBackoff(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) pendingBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.throttled {
		return 0
	}
	return l.backoff
}

// Allow reports whether a call may happen now without waiting
func (l *Limiter) Allow() bool {
	if l.pendingBackoff() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// SignalRateLimited records an upstream throttling reply. Each signal doubles the
// backoff up to two minutes.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.throttled {
		l.backoff *= 2
	}
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
	l.throttled = true
}

// ResetBackoff clears the backoff after a successful call
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = baseBackoff
	l.throttled = false
}

// Backoff returns the delay the next Wait will add, zero when not throttled
func (l *Limiter) Backoff() time.Duration {
	return l.pendingBackoff()
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

// PerMinute returns the configured budget
func (l *Limiter) PerMinute() int {
	return l.perMinute
}

// Registry hands out one shared limiter per provider name so that every client of the
// same upstream draws from the same budget
type Registry struct {
	limiters map[string]*Limiter
	mu       sync.Mutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
	}
}

// Get returns the limiter for name, creating it with perMinute on first use.
// Later calls keep the first budget.
func (r *Registry) Get(name string, perMinute int) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := NewLimiter(name, perMinute)
	r.limiters[name] = l
	return l
}

// Lookup returns an existing limiter
func (r *Registry) Lookup(name string) (*Limiter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[name]
	return l, ok
}
