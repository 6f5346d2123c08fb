package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", New(KindPermanent, "404"), KindPermanent},
		{"wrapped", fmt.Errorf("fetch: %w", New(KindParse, "empty body")), KindParse},
		{"plain error defaults to transient", stderrors.New("boom"), KindTransient},
		{"double wrap keeps inner kind", Wrap(KindFatal, "auth", stderrors.New("401")), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTransient, "timeout")))
	assert.True(t, IsRetryable(New(KindRateLimit, "429")))
	assert.False(t, IsRetryable(New(KindPermanent, "gone")))
	assert.False(t, IsRetryable(New(KindFatal, "auth")))
	assert.False(t, IsRetryable(New(KindBudget, "spent")))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindDuplicate, "text hash collision"))
	assert.True(t, stderrors.Is(err, New(KindDuplicate, "")))
	assert.False(t, stderrors.Is(err, New(KindParse, "")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindTransient, "noop", nil))
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(KindPermanent, "paywall")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
	assert.Equal(t, KindPermanent, KindOf(err))
}

func TestRetryExhaustsTransient(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(KindTransient, "503")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResultSucceedsMidway(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, New(KindTransient, "flaky")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func() error { return New(KindTransient, "x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("gpt-5", 2, 10*time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure(New(KindTransient, "timeout"))
	assert.True(t, cb.Allow())
	cb.RecordFailure(New(KindTransient, "timeout"))
	assert.False(t, cb.Allow())
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerFatalOpensImmediately(t *testing.T) {
	cb := NewCircuitBreaker("gpt-5", 10, time.Minute)
	cb.RecordFailure(New(KindFatal, "invalid api key"))
	assert.False(t, cb.Allow())
}
