package govern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

func TestAllowWithinBudget(t *testing.T) {
	g := New(Budget{MaxTokens: 1000, MaxCents: 10, Timeout: time.Minute})
	require.NoError(t, g.Allow(500, 2.0))
	g.Charge(500, 1.5)
	require.NoError(t, g.Allow(400, 2.0))
}

func TestTokenBudgetTrips(t *testing.T) {
	g := New(Budget{MaxTokens: 1000})
	g.Charge(900, 0)

	err := g.Allow(200, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindBudget, apperr.KindOf(err))
}

func TestCentsBudgetTrips(t *testing.T) {
	g := New(Budget{MaxCents: 5})
	g.Charge(0, 5.0)
	assert.Error(t, g.Allow(1, 0))
}

func TestCentsEstimateDeniedBeforeOverspend(t *testing.T) {
	g := New(Budget{MaxCents: 5})
	g.Charge(0, 4.0)

	// A call projected to land over the cap is refused up front.
	err := g.Allow(100, 1.5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindBudget, apperr.KindOf(err))

	// The projection alone tripped it; nothing was ever charged past 4.
	assert.InDelta(t, 4.0, g.Snapshot().Cents, 0.0001)
}

func TestCentsEstimateWithinCapAllowed(t *testing.T) {
	g := New(Budget{MaxCents: 5})
	g.Charge(0, 4.0)
	assert.NoError(t, g.Allow(100, 0.5))
}

func TestTimeBudgetTrips(t *testing.T) {
	g := New(Budget{Timeout: time.Nanosecond})
	time.Sleep(time.Millisecond)
	err := g.Allow(1, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindBudget, apperr.KindOf(err))
}

func TestDenialIsSticky(t *testing.T) {
	g := New(Budget{MaxTokens: 100})
	g.Charge(100, 0)
	require.Error(t, g.Allow(10, 0))
	// Even a zero-cost call is refused afterwards.
	assert.Error(t, g.Allow(0, 0))
	assert.True(t, g.Snapshot().Denied)
}

func TestZeroBudgetsAreUnlimited(t *testing.T) {
	g := New(Budget{})
	g.Charge(1_000_000, 500)
	assert.NoError(t, g.Allow(1_000_000, 500))
}

func TestDeadline(t *testing.T) {
	g := New(Budget{Timeout: time.Minute})
	dl, ok := g.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), dl, time.Second)

	_, ok = New(Budget{}).Deadline()
	assert.False(t, ok)
}

func TestSnapshotAccumulates(t *testing.T) {
	g := New(Budget{MaxTokens: 1000})
	g.Charge(100, 0.5)
	g.Charge(200, 0.25)
	snap := g.Snapshot()
	assert.Equal(t, 300, snap.Tokens)
	assert.InDelta(t, 0.75, snap.Cents, 0.0001)
	assert.False(t, snap.Denied)
}
