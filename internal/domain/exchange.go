package domain

import (
	"context"
	"time"
)

// Market is an exchange-listed binary market. Prices are in cents (1-99).
type Market struct {
	Ticker        string
	EventTicker   string
	Title         string
	Status        string // "open", "closed", "finalized", "settled"
	YesBid        int
	YesAsk        int
	NoBid         int
	NoAsk         int
	LastPrice     int
	Volume        int64
	Result        string // "yes", "no", "" while unsettled
	CloseTime     time.Time
	CanCloseEarly bool
}

// MarketFilter narrows a market listing request.
type MarketFilter struct {
	SeriesTicker string
	Status       string
	Limit        int
}

// PriceLevel is one price/quantity entry in an orderbook.
type PriceLevel struct {
	PriceCents int
	Count      int
}

// Orderbook holds resting bids for both sides of a binary market.
type Orderbook struct {
	Ticker string
	Yes    []PriceLevel
	No     []PriceLevel
}

// OrderRequest is a limit order to be submitted to the exchange.
type OrderRequest struct {
	Ticker        string
	Side          Side
	PriceCents    int
	Contracts     int
	ClientOrderID string
}

// OrderResult is the exchange's response to a successful submission.
type OrderResult struct {
	OrderID string
	Status  string
}

// PositionRef is an exchange-reported open position, the ground truth the
// reconciliation monitor diffs the ledger against.
type PositionRef struct {
	Ticker    string
	Contracts int
	Side      Side
}

// Balance is the exchange-reported account balance.
type Balance struct {
	BalanceCents int64
}

// Dollars returns the balance in dollars.
func (b Balance) Dollars() float64 {
	return float64(b.BalanceCents) / 100.0
}

// Settlement is the authoritative settlement status of a market. IsSettled
// is only true when the exchange has published a result; SettlementPrice is
// then 0 or 100 cents.
type Settlement struct {
	IsSettled       bool
	IsFinalized     bool
	SettlementPrice int
	Result          string
}

// ExchangeClient is the exchange collaborator consumed by the core. All
// calls are synchronous and individually rate-limited by the implementation.
type ExchangeClient interface {
	GetMarkets(ctx context.Context, filter MarketFilter) ([]Market, error)
	GetMarket(ctx context.Context, ticker string) (Market, error)
	GetOrderbook(ctx context.Context, ticker string) (Orderbook, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPositions(ctx context.Context) ([]PositionRef, error)
	GetBalance(ctx context.Context) (Balance, error)
	GetSettlement(ctx context.Context, ticker string) (Settlement, error)
}
