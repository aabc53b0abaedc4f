package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingagent/internal/domain"
	"tradingagent/internal/executor"
	"tradingagent/internal/ledger"
	"tradingagent/internal/queue"
	"tradingagent/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExchange serves canned markets and orderbooks.
type fakeExchange struct {
	markets []domain.Market
	books   map[string]domain.Orderbook
}

func (f *fakeExchange) GetMarkets(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	return f.markets, nil
}
func (f *fakeExchange) GetMarket(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}
func (f *fakeExchange) GetOrderbook(_ context.Context, ticker string) (domain.Orderbook, error) {
	return f.books[ticker], nil
}
func (f *fakeExchange) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{OrderID: "ord"}, nil
}
func (f *fakeExchange) GetPositions(context.Context) ([]domain.PositionRef, error) {
	return nil, nil
}
func (f *fakeExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (f *fakeExchange) GetSettlement(context.Context, string) (domain.Settlement, error) {
	return domain.Settlement{}, nil
}

func newSpreadFixture(t *testing.T, client *fakeExchange) (*Spread, *ledger.Ledger) {
	t.Helper()
	book, err := ledger.New(t.TempDir(), testLogger())
	require.NoError(t, err)
	rm := risk.NewManager(risk.Config{
		InitialBankroll: 200,
		DailyLossLimit:  0.10,
		MaxExposurePct:  0.30,
	}, testLogger())
	exec := executor.New(executor.Config{DryRun: true, InitialBankroll: 200}, client, book, rm, nil, testLogger())
	s := NewSpread(SpreadConfig{TitleKeywords: []string{"temp"}}, client, exec, book, testLogger())
	return s, book
}

func TestSpreadScanFindsWideSpread(t *testing.T) {
	client := &fakeExchange{
		markets: []domain.Market{
			{Ticker: "WX-NYC", Title: "NYC high temp above 85", Status: "open", LastPrice: 5},
			{Ticker: "EXPENSIVE", Title: "Warm temp market", Status: "open", LastPrice: 60},
			{Ticker: "OFFTOPIC", Title: "Election winner", Status: "open", LastPrice: 5},
		},
		books: map[string]domain.Orderbook{
			// Best YES bid 3c; best NO bid 90c implies best YES ask 10c.
			"WX-NYC": {Yes: []domain.PriceLevel{{PriceCents: 3, Count: 10}}, No: []domain.PriceLevel{{PriceCents: 90, Count: 10}}},
		},
	}
	s, _ := newSpreadFixture(t, client)

	opps, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "WX-NYC", opp.Ticker)
	assert.Equal(t, domain.SideYes, opp.Side)
	assert.Equal(t, 3, opp.PriceCents)
	// Entry 3c targeting 10c: edge (10-3)/3.
	assert.InDelta(t, 7.0/3.0, opp.Edge, 1e-9)
}

func TestSpreadScanSkipsNarrowSpread(t *testing.T) {
	client := &fakeExchange{
		markets: []domain.Market{
			{Ticker: "TIGHT", Title: "Another temp market", Status: "open", LastPrice: 5},
		},
		books: map[string]domain.Orderbook{
			// Bid 5, ask 7: spread of 2c is under the 5c minimum.
			"TIGHT": {Yes: []domain.PriceLevel{{PriceCents: 5, Count: 1}}, No: []domain.PriceLevel{{PriceCents: 93, Count: 1}}},
		},
	}
	s, _ := newSpreadFixture(t, client)

	opps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestSpreadExitsAtTarget(t *testing.T) {
	client := &fakeExchange{
		markets: []domain.Market{
			{Ticker: "WX-NYC", Title: "NYC high temp", Status: "open", LastPrice: 5},
		},
		books: map[string]domain.Orderbook{
			"WX-NYC": {Yes: []domain.PriceLevel{{PriceCents: 3, Count: 10}}, No: []domain.PriceLevel{{PriceCents: 90, Count: 10}}},
		},
	}
	s, book := newSpreadFixture(t, client)

	// First scan records the 10c target; execute opens the position.
	opps, err := s.Scan(context.Background())
	require.NoError(t, err)
	n, err := s.Execute(context.Background(), opps)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, book.HasOpenPosition("WX-NYC", domain.UniverseSimulated))

	// The bid rallies to the target: the next scan closes the position.
	client.books["WX-NYC"] = domain.Orderbook{
		Yes: []domain.PriceLevel{{PriceCents: 11, Count: 10}},
		No:  []domain.PriceLevel{{PriceCents: 85, Count: 10}},
	}
	_, err = s.Scan(context.Background())
	require.NoError(t, err)

	pos := book.GetPosition("WX-NYC", domain.UniverseSimulated)
	require.NotNil(t, pos)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	require.NotNil(t, pos.ExitPrice)
	assert.Equal(t, 11, *pos.ExitPrice)
}

func TestSelectorTokens(t *testing.T) {
	assert.Equal(t, []string{"nyc", "weather", "feb", "2025", "high", "temp"},
		selectorTokens("nyc-weather-feb-3-2025-high-temp"))
	assert.Empty(t, selectorTokens("a-b"))
}

func newCopyTradeFixture(t *testing.T, client *fakeExchange) (*CopyTrade, *queue.RetryQueue, *ledger.Ledger) {
	t.Helper()
	book, err := ledger.New(t.TempDir(), testLogger())
	require.NoError(t, err)
	rm := risk.NewManager(risk.Config{
		InitialBankroll: 200,
		DailyLossLimit:  0.10,
		MaxExposurePct:  0.30,
	}, testLogger())
	exec := executor.New(executor.Config{DryRun: true, InitialBankroll: 200}, client, book, rm, nil, testLogger())
	retries := queue.New(exec.SubmitQueued, testLogger())
	exec.SetRetryQueue(retries)
	ct := NewCopyTrade(CopyTradeConfig{}, nil, client, retries, exec, book, testLogger())
	return ct, retries, book
}

func TestResolveTickerMatchesKeywords(t *testing.T) {
	client := &fakeExchange{
		markets: []domain.Market{
			{Ticker: "KXHIGHNY-B85", Title: "NYC high temp above 85", Status: "open"},
			{Ticker: "KXHIGHCHI-B90", Title: "Chicago high temp above 90", Status: "open"},
		},
	}
	ct, _, _ := newCopyTradeFixture(t, client)

	ticker, err := ct.ResolveTicker(context.Background(), domain.QueuedTrade{Selector: "nyc high temp"})
	require.NoError(t, err)
	assert.Equal(t, "KXHIGHNY-B85", ticker)
}

func TestResolveTickerNoMatch(t *testing.T) {
	client := &fakeExchange{
		markets: []domain.Market{
			{Ticker: "KXHIGHNY-B85", Title: "NYC high temp above 85", Status: "open"},
		},
	}
	ct, _, _ := newCopyTradeFixture(t, client)

	_, err := ct.ResolveTicker(context.Background(), domain.QueuedTrade{Selector: "miami rain"})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}
