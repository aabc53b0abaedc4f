package domain

import "time"

// Opportunity is a candidate trade emitted by a strategy scan. Odds are
// decimal odds implied by the entry price; WinProbability is the strategy's
// own estimate.
type Opportunity struct {
	Ticker         string
	MarketTitle    string
	Side           Side
	PriceCents     int
	WinProbability float64
	Odds           float64
	Edge           float64
	ExpectedValue  float64
	Source         string
	Reason         string
}

// QueuedTrade is an order submission that failed for a transient reason and
// is waiting to be retried. Ticker may be empty when the trade was queued
// against a selector that has not been resolved to a concrete market yet.
type QueuedTrade struct {
	Source     string    `json:"source"`
	Selector   string    `json:"selector"`
	Ticker     string    `json:"ticker"`
	Side       Side      `json:"side"`
	PriceCents int       `json:"price_cents"`
	Contracts  int       `json:"contracts"`
	QueuedAt   time.Time `json:"queued_at"`
	RetryCount int       `json:"retry_count"`
}

// Age returns how long the trade has been waiting since it was queued.
func (q QueuedTrade) Age(now time.Time) time.Duration {
	return now.Sub(q.QueuedAt)
}

// StrategyResult is the per-cycle summary appended to a strategy's trailing
// history and consumed by the allocation optimizer.
type StrategyResult struct {
	Name               string
	OpportunitiesFound int
	TradesExecuted     int
	ProfitLoss         float64
	WinRate            float64
	Runtime            time.Duration
	Errors             []string
}

// TradeRecord is one closed trade as written to the journal.
type TradeRecord struct {
	Ticker     string
	Strategy   string
	Universe   Universe
	Side       Side
	Contracts  int
	EntryPrice int
	ExitPrice  int
	PnL        float64
	OpenedAt   time.Time
	ClosedAt   time.Time
}
