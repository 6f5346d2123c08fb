// Package govern enforces per-request budgets on the agentic loop: total
// model tokens, spend in cents, and wall time. Time accounting uses the
// monotonic clock carried by time.Time, so wall clock adjustments cannot
// extend or shrink a budget.
package govern

import (
	"fmt"
	"sync"
	"time"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

// Budget is the per-request allowance.
type Budget struct {
	MaxTokens int
	MaxCents  float64
	Timeout   time.Duration
}

// Governor tracks consumption against a Budget for one request.
type Governor struct {
	budget  Budget
	started time.Time

	mu     sync.Mutex
	tokens int
	cents  float64
	denied bool
}

// New starts a Governor; the clock begins immediately.
func New(budget Budget) *Governor {
	return &Governor{budget: budget, started: time.Now()}
}

// Elapsed reports time since the request started.
func (g *Governor) Elapsed() time.Duration {
	return time.Since(g.started)
}

// Allow checks whether a call estimated at estTokens and estCents may
// proceed. A denial is sticky: once any budget trips, every later call is
// denied too.
func (g *Governor) Allow(estTokens int, estCents float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.denied {
		return apperr.New(apperr.KindBudget, "budget already exhausted")
	}

	if g.budget.Timeout > 0 && g.Elapsed() >= g.budget.Timeout {
		g.denied = true
		return apperr.New(apperr.KindBudget,
			fmt.Sprintf("time budget exhausted after %s", g.Elapsed().Round(time.Millisecond)))
	}
	if g.budget.MaxTokens > 0 && g.tokens+estTokens > g.budget.MaxTokens {
		g.denied = true
		return apperr.New(apperr.KindBudget,
			fmt.Sprintf("token budget exhausted: %d used, %d requested, %d max",
				g.tokens, estTokens, g.budget.MaxTokens))
	}
	if g.budget.MaxCents > 0 && (g.cents >= g.budget.MaxCents || g.cents+estCents > g.budget.MaxCents) {
		g.denied = true
		return apperr.New(apperr.KindBudget,
			fmt.Sprintf("spend budget exhausted: %.2f cents used, %.2f requested, %.2f max",
				g.cents, estCents, g.budget.MaxCents))
	}
	return nil
}

// Charge records actual usage after a call completes.
func (g *Governor) Charge(tokens int, cents float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens += tokens
	g.cents += cents
}

// Deadline returns the context deadline implied by the time budget.
func (g *Governor) Deadline() (time.Time, bool) {
	if g.budget.Timeout <= 0 {
		return time.Time{}, false
	}
	return g.started.Add(g.budget.Timeout), true
}

// Usage is a consumption snapshot for response metadata.
type Usage struct {
	Tokens  int           `json:"tokens"`
	Cents   float64       `json:"cents"`
	Elapsed time.Duration `json:"elapsed"`
	Denied  bool          `json:"denied"`
}

// Snapshot returns current consumption.
func (g *Governor) Snapshot() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Usage{
		Tokens:  g.tokens,
		Cents:   g.cents,
		Elapsed: g.Elapsed(),
		Denied:  g.denied,
	}
}
