package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

func TestLoopRunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int64
	s := New(slog.Default())
	s.Add("counter", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestLoopSurvivesCycleErrors(t *testing.T) {
	var runs atomic.Int64
	s := New(slog.Default())
	s.Add("flaky", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("bad batch")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int64(2))
}

func TestLoopStopsOnFatalError(t *testing.T) {
	var runs atomic.Int64
	s := New(slog.Default())
	s.Add("doomed", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return apperr.New(apperr.KindFatal, "api key revoked")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFatal, apperr.KindOf(err))
	// The loop did not keep cycling after the fatal error.
	assert.EqualValues(t, 1, runs.Load())
}

func TestFatalLoopStopsSiblings(t *testing.T) {
	var healthy atomic.Int64
	s := New(slog.Default())
	s.Add("healthy", 5*time.Millisecond, func(context.Context) error {
		healthy.Add(1)
		return nil
	})
	s.Add("doomed", 5*time.Millisecond, func(context.Context) error {
		return apperr.New(apperr.KindFatal, "provider outage")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	err := s.Run(ctx)
	require.Error(t, err)
	// The group wound down well before the deadline.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Positive(t, healthy.Load())
}

func TestServiceRunsLoopsTogether(t *testing.T) {
	var a, b atomic.Int64
	s := New(slog.Default())
	s.Add("a", 10*time.Millisecond, func(context.Context) error { a.Add(1); return nil })
	s.Add("b", 10*time.Millisecond, func(context.Context) error { b.Add(1); return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Positive(t, a.Load())
	assert.Positive(t, b.Load())
}

func TestOnce(t *testing.T) {
	err := Once(context.Background(), slog.Default(), "ok", func(context.Context) error { return nil })
	require.NoError(t, err)

	err = Once(context.Background(), slog.Default(), "bad", func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
}
