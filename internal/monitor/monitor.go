// Package monitor reconciles the local position ledger against
// exchange-reported truth and watches open positions for hedge and exit
// opportunities.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradingagent/internal/domain"
	"tradingagent/internal/ledger"
)

// Recommendation is the monitor's advice for one open position.
type Recommendation string

const (
	RecommendHold    Recommendation = "HOLD"
	RecommendWatch   Recommendation = "WATCH"
	RecommendHedge   Recommendation = "HEDGE"
	RecommendExit    Recommendation = "EXIT"
	RecommendSettled Recommendation = "SETTLED"
)

// ReconcileState classifies what the exchange knows about a locally open
// position.
type ReconcileState string

const (
	// StateOpen: the exchange still reports the position.
	StateOpen ReconcileState = "OPEN"
	// StateFinalized: the underlying event closed but settlement has not
	// been published. The position stays open and is re-checked later.
	StateFinalized ReconcileState = "FINALIZED"
	// StateSettled: the exchange published an authoritative result.
	StateSettled ReconcileState = "SETTLED"
	// StateUnknown: the position vanished with no determinable status. It is
	// flagged for manual review and never auto-closed.
	StateUnknown ReconcileState = "UNKNOWN"
)

// MarketData is the current view of a market used for position analysis.
type MarketData struct {
	PriceCents int
	Edge       float64
}

// MarketDataFunc fetches current market data for a ticker.
type MarketDataFunc func(ctx context.Context, ticker string) (MarketData, error)

// PositionState is the analyzed state of one open position.
type PositionState struct {
	Ticker         string
	Side           domain.Side
	Contracts      int
	EntryPrice     int
	CurrentPrice   int
	CurrentEdge    float64
	PnLPct         float64
	Recommendation Recommendation
}

// HedgeRecommendation proposes an offsetting order for a position whose edge
// has deteriorated.
type HedgeRecommendation struct {
	Ticker       string
	OriginalSide domain.Side
	HedgeSide    domain.Side
	HedgeSize    int
	Reason       string
}

// Config holds the monitor thresholds.
type Config struct {
	StopLossPct   float64 // e.g. -0.30: exit below 30% loss
	TakeProfitPct float64 // e.g. 0.50: exit above 50% gain
	EdgeThreshold float64 // hedge consideration below this edge
	HoldEdge      float64 // comfortable hold above this edge
	SyncInterval  time.Duration
}

// DefaultConfig returns the standard monitor thresholds.
func DefaultConfig() Config {
	return Config{
		StopLossPct:   -0.30,
		TakeProfitPct: 0.50,
		EdgeThreshold: 0.05,
		HoldEdge:      0.15,
		SyncInterval:  5 * time.Minute,
	}
}

// ResultRecorder receives realized pnl from settlements, feeding the risk
// manager's streak and daily-loss tracking.
type ResultRecorder interface {
	RecordResult(profit float64)
}

// TradeJournal persists closed trades for offline analysis. Optional.
type TradeJournal interface {
	Record(ctx context.Context, rec domain.TradeRecord) error
}

// Monitor reconciles the ledger against the exchange and analyzes open
// positions.
type Monitor struct {
	cfg     Config
	ledger  *ledger.Ledger
	client  domain.ExchangeClient
	results ResultRecorder
	journal TradeJournal
	logger  *slog.Logger
}

// New creates a Monitor. results and journal may be nil.
func New(cfg Config, lg *ledger.Ledger, client domain.ExchangeClient, results ResultRecorder, journal TradeJournal, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		ledger:  lg,
		client:  client,
		results: results,
		journal: journal,
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// SyncWithExchange diffs locally open positions for a strategy against the
// exchange's reported positions. A locally open ticker absent from the
// exchange is resolved through its settlement status: settled positions are
// closed with authoritative pnl, finalized ones stay open pending
// settlement, and anything else is flagged UNKNOWN without mutating the
// ledger. Strategy "" syncs all strategies.
func (m *Monitor) SyncWithExchange(ctx context.Context, strategy string, u domain.Universe) error {
	open := m.ledger.GetOpenPositions(strategy, u)
	if len(open) == 0 {
		return nil
	}

	refs, err := m.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("monitor: get exchange positions: %w", err)
	}
	onExchange := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if ref.Contracts != 0 {
			onExchange[ref.Ticker] = struct{}{}
		}
	}

	for _, pos := range open {
		if _, ok := onExchange[pos.Ticker]; ok {
			continue // still active
		}
		state := m.resolveMissing(ctx, pos, u)
		m.logger.Debug("reconciled position",
			slog.String("ticker", pos.Ticker),
			slog.String("state", string(state)),
		)
	}
	return nil
}

// resolveMissing handles one locally open position the exchange no longer
// reports.
func (m *Monitor) resolveMissing(ctx context.Context, pos domain.Position, u domain.Universe) ReconcileState {
	settlement, err := m.client.GetSettlement(ctx, pos.Ticker)
	if err != nil {
		m.logger.Warn("position vanished from exchange with no determinable status",
			slog.String("ticker", pos.Ticker),
			slog.String("strategy", pos.Strategy),
			slog.String("error", err.Error()),
		)
		return StateUnknown
	}

	switch {
	case settlement.IsSettled:
		pnl := pos.SettlementPnL(settlement.SettlementPrice)
		closed, err := m.ledger.ClosePosition(pos.Ticker, settlement.SettlementPrice, pnl, u)
		if err != nil {
			m.logger.Error("could not close settled position",
				slog.String("ticker", pos.Ticker),
				slog.String("error", err.Error()),
			)
			return StateSettled
		}
		if m.results != nil {
			m.results.RecordResult(pnl)
		}
		if m.journal != nil && closed != nil {
			m.recordClosed(ctx, *closed, u)
		}
		m.logger.Info("settled position closed",
			slog.String("ticker", pos.Ticker),
			slog.Int("settlement_price", settlement.SettlementPrice),
			slog.Float64("pnl", pnl),
		)
		return StateSettled

	case settlement.IsFinalized:
		m.logger.Info("market finalized, awaiting settlement",
			slog.String("ticker", pos.Ticker),
		)
		return StateFinalized

	default:
		m.logger.Warn("position missing from exchange but market not settled, flagging for review",
			slog.String("ticker", pos.Ticker),
			slog.String("strategy", pos.Strategy),
		)
		return StateUnknown
	}
}

func (m *Monitor) recordClosed(ctx context.Context, pos domain.Position, u domain.Universe) {
	if pos.ExitPrice == nil || pos.ExitTime == nil || pos.PnL == nil {
		return
	}
	rec := domain.TradeRecord{
		Ticker:     pos.Ticker,
		Strategy:   pos.Strategy,
		Universe:   u,
		Side:       pos.Side,
		Contracts:  pos.Contracts,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  *pos.ExitPrice,
		PnL:        *pos.PnL,
		OpenedAt:   pos.EntryTime,
		ClosedAt:   *pos.ExitTime,
	}
	if err := m.journal.Record(ctx, rec); err != nil {
		m.logger.Warn("could not journal closed trade",
			slog.String("ticker", pos.Ticker),
			slog.String("error", err.Error()),
		)
	}
}

// CheckPositions analyzes every open position for a strategy and returns the
// states that produced a recommendation. Analysis failures are logged and
// skipped; one bad market never stalls the rest.
func (m *Monitor) CheckPositions(ctx context.Context, strategy string, u domain.Universe, marketData MarketDataFunc) []PositionState {
	open := m.ledger.GetOpenPositions(strategy, u)
	if len(open) == 0 {
		return nil
	}

	m.logger.Info("checking open positions",
		slog.String("strategy", strategy),
		slog.Int("count", len(open)),
	)

	var states []PositionState
	for _, pos := range open {
		state, err := m.Analyze(ctx, pos, marketData)
		if err != nil {
			m.logger.Error("position analysis failed",
				slog.String("ticker", pos.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		states = append(states, state)
		m.logRecommendation(state)
	}
	return states
}

// Analyze computes pnl and edge for one open position and attaches a
// recommendation.
func (m *Monitor) Analyze(ctx context.Context, pos domain.Position, marketData MarketDataFunc) (PositionState, error) {
	data, err := marketData(ctx, pos.Ticker)
	if err != nil {
		return PositionState{}, fmt.Errorf("monitor: market data for %s: %w", pos.Ticker, err)
	}

	current := data.PriceCents
	if current == 0 {
		current = pos.EntryPrice
	}

	var pnlPct float64
	if pos.Side == domain.SideYes {
		pnlPct = float64(current-pos.EntryPrice) / float64(pos.EntryPrice)
	} else {
		pnlPct = float64(pos.EntryPrice-current) / float64(pos.EntryPrice)
	}

	return PositionState{
		Ticker:         pos.Ticker,
		Side:           pos.Side,
		Contracts:      pos.Contracts,
		EntryPrice:     pos.EntryPrice,
		CurrentPrice:   current,
		CurrentEdge:    data.Edge,
		PnLPct:         pnlPct,
		Recommendation: m.recommend(data.Edge, pnlPct),
	}, nil
}

// recommend maps edge and pnl to a recommendation. Stop loss and take profit
// dominate; a vanished edge on a significant move suggests a hedge; a
// healthy edge holds; anything in between is watched.
func (m *Monitor) recommend(edge, pnlPct float64) Recommendation {
	if pnlPct < m.cfg.StopLossPct {
		return RecommendExit
	}
	if pnlPct > m.cfg.TakeProfitPct {
		return RecommendExit
	}
	if edge < m.cfg.EdgeThreshold {
		if pnlPct > 0.10 || pnlPct < -0.10 {
			return RecommendHedge
		}
		return RecommendHold
	}
	if edge > m.cfg.HoldEdge {
		return RecommendHold
	}
	return RecommendWatch
}

// HedgeRecommendations converts HEDGE states into concrete offsetting
// orders. Hedge size scales with realized gain: full size above +30% pnl,
// half between +10% and +30%, minimal otherwise.
func (m *Monitor) HedgeRecommendations(states []PositionState) []HedgeRecommendation {
	var hedges []HedgeRecommendation
	for _, st := range states {
		if st.Recommendation != RecommendHedge {
			continue
		}
		hedges = append(hedges, HedgeRecommendation{
			Ticker:       st.Ticker,
			OriginalSide: st.Side,
			HedgeSide:    st.Side.Opposite(),
			HedgeSize:    hedgeSize(st),
			Reason: fmt.Sprintf("edge dropped to %.1f%%, pnl at %+.1f%%",
				st.CurrentEdge*100, st.PnLPct*100),
		})
	}
	return hedges
}

// hedgeSize scales the hedge with realized gain, locking in profit while
// keeping upside.
func hedgeSize(st PositionState) int {
	switch {
	case st.PnLPct > 0.30:
		return st.Contracts
	case st.PnLPct > 0.10:
		half := st.Contracts / 2
		if half < 1 {
			half = 1
		}
		return half
	default:
		return 1
	}
}

func (m *Monitor) logRecommendation(st PositionState) {
	attrs := []any{
		slog.String("ticker", st.Ticker),
		slog.String("side", string(st.Side)),
		slog.String("pnl_pct", fmt.Sprintf("%+.1f%%", st.PnLPct*100)),
		slog.String("edge", fmt.Sprintf("%.1f%%", st.CurrentEdge*100)),
		slog.String("recommendation", string(st.Recommendation)),
	}
	switch st.Recommendation {
	case RecommendExit:
		m.logger.Error("exit signal", attrs...)
	case RecommendHedge:
		m.logger.Warn("hedge opportunity", attrs...)
	default:
		m.logger.Info("position state", attrs...)
	}
}

// Run executes the reconciliation loop until ctx is cancelled, syncing both
// universes every SyncInterval.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, u := range []domain.Universe{domain.UniverseReal, domain.UniverseSimulated} {
			if err := m.SyncWithExchange(ctx, "", u); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Error("reconciliation sync failed",
					slog.String("universe", string(u)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
