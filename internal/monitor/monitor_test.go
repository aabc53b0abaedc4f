package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingagent/internal/domain"
	"tradingagent/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExchange is a scriptable domain.ExchangeClient for reconciliation
// tests. Only the calls the monitor makes are implemented.
type fakeExchange struct {
	positions   []domain.PositionRef
	settlements map[string]domain.Settlement
	settleErr   error
}

func (f *fakeExchange) GetMarkets(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	return nil, nil
}
func (f *fakeExchange) GetMarket(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}
func (f *fakeExchange) GetOrderbook(context.Context, string) (domain.Orderbook, error) {
	return domain.Orderbook{}, nil
}
func (f *fakeExchange) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}
func (f *fakeExchange) GetPositions(context.Context) ([]domain.PositionRef, error) {
	return f.positions, nil
}
func (f *fakeExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (f *fakeExchange) GetSettlement(_ context.Context, ticker string) (domain.Settlement, error) {
	if f.settleErr != nil {
		return domain.Settlement{}, f.settleErr
	}
	return f.settlements[ticker], nil
}

// recordedResults captures realized pnl fed to the risk manager.
type recordedResults struct {
	profits []float64
}

func (r *recordedResults) RecordResult(profit float64) {
	r.profits = append(r.profits, profit)
}

func newTestMonitor(t *testing.T, client *fakeExchange, results ResultRecorder) (*Monitor, *ledger.Ledger) {
	t.Helper()
	book, err := ledger.New(t.TempDir(), testLogger())
	require.NoError(t, err)
	m := New(DefaultConfig(), book, client, results, nil, testLogger())
	return m, book
}

func TestSyncClosesSettledPosition(t *testing.T) {
	client := &fakeExchange{
		settlements: map[string]domain.Settlement{
			"WX-A": {IsSettled: true, IsFinalized: true, SettlementPrice: 100, Result: "yes"},
		},
	}
	results := &recordedResults{}
	m, book := newTestMonitor(t, client, results)

	_, err := book.OpenPosition("WX-A", domain.SideYes, 5, 30, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SyncWithExchange(context.Background(), "", domain.UniverseReal))

	pos := book.GetPosition("WX-A", domain.UniverseReal)
	require.NotNil(t, pos)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	// (100 - 30) * 5 / 100
	require.NotNil(t, pos.PnL)
	assert.InDelta(t, 3.5, *pos.PnL, 1e-9)
	require.Len(t, results.profits, 1)
	assert.InDelta(t, 3.5, results.profits[0], 1e-9)
}

func TestSyncNoSideSettlement(t *testing.T) {
	client := &fakeExchange{
		settlements: map[string]domain.Settlement{
			"WX-B": {IsSettled: true, IsFinalized: true, SettlementPrice: 0, Result: "no"},
		},
	}
	m, book := newTestMonitor(t, client, nil)

	// A NO position profits when the market settles at zero.
	_, err := book.OpenPosition("WX-B", domain.SideNo, 4, 25, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SyncWithExchange(context.Background(), "", domain.UniverseReal))

	pos := book.GetPosition("WX-B", domain.UniverseReal)
	require.NotNil(t, pos.PnL)
	// (25 - 0) * 4 / 100
	assert.InDelta(t, 1.0, *pos.PnL, 1e-9)
}

func TestSyncLeavesActivePositionAlone(t *testing.T) {
	client := &fakeExchange{
		positions: []domain.PositionRef{{Ticker: "LIVE", Contracts: 5, Side: domain.SideYes}},
	}
	m, book := newTestMonitor(t, client, nil)

	_, err := book.OpenPosition("LIVE", domain.SideYes, 5, 40, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SyncWithExchange(context.Background(), "", domain.UniverseReal))
	assert.True(t, book.HasOpenPosition("LIVE", domain.UniverseReal))
}

func TestSyncUnknownNeverAutoCloses(t *testing.T) {
	// The position vanished and the settlement lookup fails: flag, don't
	// mutate.
	client := &fakeExchange{settleErr: errors.New("api down")}
	m, book := newTestMonitor(t, client, nil)

	_, err := book.OpenPosition("GONE", domain.SideYes, 2, 50, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SyncWithExchange(context.Background(), "", domain.UniverseReal))
	assert.True(t, book.HasOpenPosition("GONE", domain.UniverseReal))
}

func TestSyncFinalizedStaysOpen(t *testing.T) {
	client := &fakeExchange{
		settlements: map[string]domain.Settlement{
			"FIN": {IsSettled: false, IsFinalized: true},
		},
	}
	m, book := newTestMonitor(t, client, nil)

	_, err := book.OpenPosition("FIN", domain.SideYes, 2, 50, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SyncWithExchange(context.Background(), "", domain.UniverseReal))
	assert.True(t, book.HasOpenPosition("FIN", domain.UniverseReal))
}

func TestRecommendations(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeExchange{}, nil)

	cases := []struct {
		name   string
		edge   float64
		pnlPct float64
		want   Recommendation
	}{
		{"stop loss", 0.20, -0.35, RecommendExit},
		{"take profit", 0.20, 0.60, RecommendExit},
		{"edge gone, big gain", 0.02, 0.20, RecommendHedge},
		{"edge gone, big loss", 0.02, -0.20, RecommendHedge},
		{"edge gone, small move", 0.02, 0.05, RecommendHold},
		{"healthy edge", 0.20, 0.05, RecommendHold},
		{"middling edge", 0.10, 0.05, RecommendWatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.recommend(tc.edge, tc.pnlPct))
		})
	}
}

func TestAnalyzeComputesPnL(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeExchange{}, nil)

	pos := domain.Position{
		Ticker: "T", Side: domain.SideNo, Contracts: 10, EntryPrice: 40,
		Status: domain.PositionStatusOpen,
	}
	data := func(context.Context, string) (MarketData, error) {
		return MarketData{PriceCents: 30, Edge: 0.20}, nil
	}

	state, err := m.Analyze(context.Background(), pos, data)
	require.NoError(t, err)
	// NO position gains as price falls: (40-30)/40.
	assert.InDelta(t, 0.25, state.PnLPct, 1e-9)
	assert.Equal(t, RecommendHold, state.Recommendation)
}

func TestHedgeRecommendationSizing(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeExchange{}, nil)

	states := []PositionState{
		{Ticker: "FULL", Side: domain.SideYes, Contracts: 10, PnLPct: 0.40, Recommendation: RecommendHedge},
		{Ticker: "HALF", Side: domain.SideYes, Contracts: 10, PnLPct: 0.20, Recommendation: RecommendHedge},
		{Ticker: "MIN", Side: domain.SideNo, Contracts: 10, PnLPct: -0.15, Recommendation: RecommendHedge},
		{Ticker: "SKIP", Side: domain.SideYes, Contracts: 10, PnLPct: 0.05, Recommendation: RecommendHold},
	}

	hedges := m.HedgeRecommendations(states)
	require.Len(t, hedges, 3)
	assert.Equal(t, 10, hedges[0].HedgeSize)
	assert.Equal(t, 5, hedges[1].HedgeSize)
	assert.Equal(t, 1, hedges[2].HedgeSize)
	// The hedge always takes the opposite side.
	assert.Equal(t, domain.SideNo, hedges[0].HedgeSide)
	assert.Equal(t, domain.SideYes, hedges[2].HedgeSide)
}
