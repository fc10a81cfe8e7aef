package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces outbound API calls per endpoint host, so several embedding
// backends (or several workers sharing one) never exceed their quota.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter; requestsPerSecond <= 0 disables pacing
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a request to endpoint is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	host, err := hostOf(endpoint)
	if err != nil {
		return err
	}
	return l.get(host).Wait(ctx)
}

// allow reports whether a request to endpoint may proceed now
func (l *Limiter) allow(endpoint string) bool {
	host, err := hostOf(endpoint)
	if err != nil {
		return false
	}
	return l.get(host).Allow()
}

// SetHostRate overrides the rate for one host; requestsPerSecond <= 0 disables pacing
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.limiters[host] = rate.NewLimiter(limit, burst)
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// hostOf extracts the host of an endpoint URL
func hostOf(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return parsed.Host, nil
}
