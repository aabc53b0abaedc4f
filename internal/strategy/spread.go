package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tradingagent/internal/domain"
	"tradingagent/internal/executor"
	"tradingagent/internal/ledger"
)

const (
	defaultSpreadMinPrice    = 1
	defaultSpreadMaxPrice    = 15
	defaultSpreadMinWidth    = 5
	defaultSpreadMaxBid      = 10
	defaultSpreadMinEdge     = 0.02
	defaultSpreadMarketLimit = 100
)

// SpreadConfig tunes the spread capture strategy.
type SpreadConfig struct {
	// TitleKeywords restricts scanning to markets whose title contains one of
	// these substrings. Empty means all markets.
	TitleKeywords []string
	// MinPriceCents/MaxPriceCents bound the last-price band scanned.
	MinPriceCents int
	MaxPriceCents int
	// MinSpreadCents is the minimum bid/ask gap worth quoting inside.
	MinSpreadCents int
	// MaxBidCents skips markets whose best bid is already above this.
	MaxBidCents int
	// MinEdge is the minimum expected profit fraction on entry.
	MinEdge float64
	// MarketLimit caps the listing request.
	MarketLimit int
}

func (c *SpreadConfig) applyDefaults() {
	if c.MinPriceCents <= 0 {
		c.MinPriceCents = defaultSpreadMinPrice
	}
	if c.MaxPriceCents <= 0 {
		c.MaxPriceCents = defaultSpreadMaxPrice
	}
	if c.MinSpreadCents <= 0 {
		c.MinSpreadCents = defaultSpreadMinWidth
	}
	if c.MaxBidCents <= 0 {
		c.MaxBidCents = defaultSpreadMaxBid
	}
	if c.MinEdge <= 0 {
		c.MinEdge = defaultSpreadMinEdge
	}
	if c.MarketLimit <= 0 {
		c.MarketLimit = defaultSpreadMarketLimit
	}
}

// Spread buys cheap markets with wide bid/ask gaps and exits when the bid
// reaches the target ask observed at entry. It does not predict outcomes; the
// edge is the spread itself.
type Spread struct {
	cfg    SpreadConfig
	client domain.ExchangeClient
	exec   *executor.Executor
	book   *ledger.Ledger
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]int // ticker -> exit target in cents
}

// NewSpread creates the spread capture strategy.
func NewSpread(cfg SpreadConfig, client domain.ExchangeClient, exec *executor.Executor, book *ledger.Ledger, logger *slog.Logger) *Spread {
	cfg.applyDefaults()
	return &Spread{
		cfg:     cfg,
		client:  client,
		exec:    exec,
		book:    book,
		logger:  logger.With(slog.String("strategy", "spread")),
		targets: make(map[string]int),
	}
}

// Name returns the strategy identifier.
func (s *Spread) Name() string { return "spread" }

// Scan exits filled positions that reached their target, then looks for new
// wide-spread entries in the configured price band.
func (s *Spread) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	if err := s.checkExits(ctx); err != nil {
		s.logger.Warn("exit check failed", slog.String("error", err.Error()))
	}

	markets, err := s.client.GetMarkets(ctx, domain.MarketFilter{
		Status: "open",
		Limit:  s.cfg.MarketLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("spread: list markets: %w", err)
	}

	var opportunities []domain.Opportunity
	for _, mkt := range markets {
		if ctx.Err() != nil {
			return opportunities, ctx.Err()
		}
		if !s.titleMatches(mkt) {
			continue
		}
		if mkt.LastPrice < s.cfg.MinPriceCents || mkt.LastPrice > s.cfg.MaxPriceCents {
			continue
		}

		book, err := s.client.GetOrderbook(ctx, mkt.Ticker)
		if err != nil {
			s.logger.Debug("orderbook fetch failed",
				slog.String("ticker", mkt.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}

		if opp, ok := s.analyze(mkt, book); ok {
			opportunities = append(opportunities, opp)
		}
	}

	s.logger.Info("scan complete",
		slog.Int("markets", len(markets)),
		slog.Int("opportunities", len(opportunities)),
	)
	return opportunities, nil
}

// analyze inspects one orderbook for a wide spread worth entering. Both books
// hold resting bids, so the best YES offer is the complement of the best NO
// bid.
func (s *Spread) analyze(mkt domain.Market, book domain.Orderbook) (domain.Opportunity, bool) {
	bestBid := bestBidCents(book.Yes)
	bestNoBid := bestBidCents(book.No)
	if bestBid == 0 || bestNoBid == 0 {
		return domain.Opportunity{}, false
	}
	bestAsk := 100 - bestNoBid

	width := bestAsk - bestBid
	if width < s.cfg.MinSpreadCents || bestBid > s.cfg.MaxBidCents {
		return domain.Opportunity{}, false
	}

	edge := float64(bestAsk-bestBid) / float64(bestBid)
	if edge < s.cfg.MinEdge {
		return domain.Opportunity{}, false
	}

	s.mu.Lock()
	s.targets[mkt.Ticker] = bestAsk
	s.mu.Unlock()

	return domain.Opportunity{
		Ticker:         mkt.Ticker,
		MarketTitle:    mkt.Title,
		Side:           domain.SideYes,
		PriceCents:     bestBid,
		WinProbability: float64(bestAsk) / 100,
		Odds:           100 / float64(bestBid),
		Edge:           edge,
		Source:         s.Name(),
		Reason:         fmt.Sprintf("wide spread: bid=%dc ask=%dc edge=%.1f%%", bestBid, bestAsk, edge*100),
	}, true
}

// Execute hands scanned opportunities to the executor for sizing and
// submission.
func (s *Spread) Execute(ctx context.Context, opportunities []domain.Opportunity) (int, error) {
	return s.exec.ExecuteAll(ctx, s.Name(), opportunities)
}

// Performance reports trailing results from the ledger.
func (s *Spread) Performance() domain.Performance {
	return s.book.GetPerformance(s.Name(), s.exec.Universe())
}

// checkExits closes open positions whose best bid has reached the target ask
// recorded at entry time.
func (s *Spread) checkExits(ctx context.Context) error {
	open := s.book.GetOpenPositions(s.Name(), s.exec.Universe())
	for _, pos := range open {
		s.mu.Lock()
		target, ok := s.targets[pos.Ticker]
		s.mu.Unlock()
		if !ok {
			continue
		}

		book, err := s.client.GetOrderbook(ctx, pos.Ticker)
		if err != nil {
			continue
		}
		bid := bestBidCents(book.Yes)
		if bid < target {
			continue
		}

		pnl := float64(bid-pos.EntryPrice) * float64(pos.Contracts) / 100
		closed, err := s.book.ClosePosition(pos.Ticker, bid, pnl, s.exec.Universe())
		if err != nil {
			return fmt.Errorf("spread: close %s: %w", pos.Ticker, err)
		}
		if closed == nil {
			continue
		}

		s.mu.Lock()
		delete(s.targets, pos.Ticker)
		s.mu.Unlock()

		s.logger.Info("target reached, position closed",
			slog.String("ticker", pos.Ticker),
			slog.Int("exit_cents", bid),
			slog.Int("target_cents", target),
		)
	}
	return nil
}

func (s *Spread) titleMatches(mkt domain.Market) bool {
	if len(s.cfg.TitleKeywords) == 0 {
		return true
	}
	title := strings.ToLower(mkt.Title)
	ticker := strings.ToLower(mkt.Ticker)
	for _, kw := range s.cfg.TitleKeywords {
		kw = strings.ToLower(kw)
		if strings.Contains(title, kw) || strings.Contains(ticker, kw) {
			return true
		}
	}
	return false
}

// bestBidCents returns the highest resting bid, or 0 when the book is empty.
func bestBidCents(levels []domain.PriceLevel) int {
	best := 0
	for _, lvl := range levels {
		if lvl.PriceCents > best {
			best = lvl.PriceCents
		}
	}
	return best
}
