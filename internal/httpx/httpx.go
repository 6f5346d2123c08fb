// Package httpx holds HTTP plumbing shared by the feed poller and the
// article fetcher: a redirect-capped client, per-domain rate limiting, and
// Retry-After parsing.
package httpx

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxRedirects = 5

// NewClient returns a client that follows at most five redirects.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// DomainLimiter enforces a per-domain request rate so one slow cycle never
// hammers a single publisher. Limiters are created lazily per domain.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewDomainLimiter allows rps requests per second per domain.
func NewDomainLimiter(rps float64) *DomainLimiter {
	if rps <= 0 {
		rps = 1
	}
	return &DomainLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    1,
	}
}

// Wait blocks until the domain's limiter admits a request or ctx ends.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	d.mu.Lock()
	lim, ok := d.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(d.rps, d.burst)
		d.limiters[domain] = lim
	}
	d.mu.Unlock()
	return lim.Wait(ctx)
}

// RetryAfter parses a Retry-After header, either delta-seconds or an HTTP
// date. Returns 0 when absent or unparseable.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
