package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "120")
	assert.Equal(t, 2*time.Minute, RetryAfter(h, time.Now()))
}

func TestRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Retry-After", now.Add(90*time.Second).Format(http.TimeFormat))
	d := RetryAfter(h, now)
	assert.InDelta(t, 90, d.Seconds(), 1)
}

func TestRetryAfterAbsentOrGarbage(t *testing.T) {
	assert.Zero(t, RetryAfter(http.Header{}, time.Now()))

	h := http.Header{}
	h.Set("Retry-After", "soon")
	assert.Zero(t, RetryAfter(h, time.Now()))

	h.Set("Retry-After", "-5")
	assert.Zero(t, RetryAfter(h, time.Now()))
}

func TestDomainLimiterIndependentDomains(t *testing.T) {
	lim := NewDomainLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// First request per domain is admitted from the burst bucket; two
	// different domains never contend.
	start := time.Now()
	require.NoError(t, lim.Wait(ctx, "a.com"))
	require.NoError(t, lim.Wait(ctx, "b.com"))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestDomainLimiterThrottlesSameDomain(t *testing.T) {
	lim := NewDomainLimiter(10) // 100ms between requests
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, lim.Wait(ctx, "a.com"))
	start := time.Now()
	require.NoError(t, lim.Wait(ctx, "a.com"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
