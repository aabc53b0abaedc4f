// Package strategy defines the pluggable trading strategy surface and the
// concrete strategies shipped with the agent.
package strategy

import (
	"context"

	"tradingagent/internal/domain"
)

// Strategy is the capability every trading strategy implements. The
// scheduler drives Scan and Execute in that order within one cycle and never
// holds concrete strategy types.
type Strategy interface {
	// Name returns the strategy identifier used for ledger attribution and
	// allocation tracking.
	Name() string
	// Scan looks for tradeable opportunities. It completes fully before
	// Execute begins.
	Scan(ctx context.Context) ([]domain.Opportunity, error)
	// Execute acts on scanned opportunities and returns how many trades it
	// placed or recorded.
	Execute(ctx context.Context, opportunities []domain.Opportunity) (int, error)
	// Performance reports the strategy's trailing results.
	Performance() domain.Performance
}

// ContinuousTrader is implemented by strategies that run their own
// event-driven loop instead of the scheduler's scan/execute cycle. The
// scheduler only starts the loop and cancels it via ctx on shutdown.
type ContinuousTrader interface {
	RunLoop(ctx context.Context) error
}
