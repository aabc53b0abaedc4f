package domain

import "time"

// Universe selects one of the two independently persisted position ledgers.
type Universe string

const (
	// UniverseReal holds positions backed by real orders on the exchange.
	UniverseReal Universe = "real"
	// UniverseSimulated holds dry-run positions that never touch the exchange.
	UniverseSimulated Universe = "simulated"
)

// Side is the contract side of a binary market position.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side of a binary market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// PositionStatus tracks the lifecycle of a position.
type PositionStatus string

const (
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusClosed    PositionStatus = "closed"
	PositionStatusCancelled PositionStatus = "cancelled"
)

// Position is one row in a ledger universe, keyed by ticker. Exit fields are
// nil until the position is closed and are set exactly once.
type Position struct {
	Ticker             string         `json:"ticker"`
	Side               Side           `json:"side"`
	Contracts          int            `json:"contracts"`
	EntryPrice         int            `json:"entry_price"` // cents, 1-99
	EntryTime          time.Time      `json:"entry_time"`
	Strategy           string         `json:"strategy"`
	Simulated          bool           `json:"simulated"`
	MarketTitle        string         `json:"market_title"`
	Status             PositionStatus `json:"status"`
	ExitPrice          *int           `json:"exit_price,omitempty"` // cents
	ExitTime           *time.Time     `json:"exit_time,omitempty"`
	PnL                *float64       `json:"pnl,omitempty"` // dollars
	ExpectedSettlement *time.Time     `json:"expected_settlement,omitempty"`
}

// Notional returns the dollar value committed at entry.
func (p Position) Notional() float64 {
	return float64(p.Contracts) * float64(p.EntryPrice) / 100.0
}

// SettlementPnL computes the dollar profit or loss if the market settles at
// the given price (0 or 100 cents). The sign is mirrored for NO positions.
func (p Position) SettlementPnL(settlementPrice int) float64 {
	if p.Side == SideYes {
		return float64(settlementPrice-p.EntryPrice) * float64(p.Contracts) / 100.0
	}
	return float64(p.EntryPrice-settlementPrice) * float64(p.Contracts) / 100.0
}

// Performance summarises closed-trade outcomes for a strategy or universe.
type Performance struct {
	Trades         int     `json:"trades"`
	WinningTrades  int     `json:"winning_trades"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	OpenCount      int     `json:"open_count"`
	AvgPnLPerTrade float64 `json:"avg_pnl_per_trade"`
}

// DailyPerformance summarises one calendar day of trading activity.
type DailyPerformance struct {
	Date          string   `json:"date"`
	Strategy      string   `json:"strategy"`
	TotalTrades   int      `json:"total_trades"`
	UniqueMarkets int      `json:"unique_markets"`
	ClosedTrades  int      `json:"closed_trades"`
	TotalPnL      float64  `json:"total_pnl"`
	Tickers       []string `json:"tickers"`
}
