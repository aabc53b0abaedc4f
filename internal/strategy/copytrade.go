package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tradingagent/internal/domain"
	"tradingagent/internal/executor"
	"tradingagent/internal/feed"
	"tradingagent/internal/ledger"
	"tradingagent/internal/queue"
)

const (
	defaultCopyMaxContracts  = 10
	defaultCopyDrainInterval = 60 * time.Second
)

// CopyTradeConfig tunes the copy trading strategy.
type CopyTradeConfig struct {
	// MaxContracts caps the size copied from any single competitor fill.
	MaxContracts int
	// DrainInterval is how often the retry queue is drained when no fills
	// arrive.
	DrainInterval time.Duration
}

func (c *CopyTradeConfig) applyDefaults() {
	if c.MaxContracts <= 0 {
		c.MaxContracts = defaultCopyMaxContracts
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = defaultCopyDrainInterval
	}
}

// CopyTrade mirrors competitor fills observed on the feed into our own
// positions. It is event-driven: the scheduler starts RunLoop instead of the
// scan/execute cycle, and all order submission flows through the retry queue
// so fills against not-yet-listed market windows wait for the window to open.
type CopyTrade struct {
	cfg     CopyTradeConfig
	fills   *feed.CompetitorFeed
	client  domain.ExchangeClient
	retries *queue.RetryQueue
	exec    *executor.Executor
	book    *ledger.Ledger
	logger  *slog.Logger
}

// NewCopyTrade creates the copy trading strategy.
func NewCopyTrade(cfg CopyTradeConfig, fills *feed.CompetitorFeed, client domain.ExchangeClient, retries *queue.RetryQueue, exec *executor.Executor, book *ledger.Ledger, logger *slog.Logger) *CopyTrade {
	cfg.applyDefaults()
	return &CopyTrade{
		cfg:     cfg,
		fills:   fills,
		client:  client,
		retries: retries,
		exec:    exec,
		book:    book,
		logger:  logger.With(slog.String("strategy", "copytrade")),
	}
}

// Name returns the strategy identifier.
func (c *CopyTrade) Name() string { return "copytrade" }

// Scan is a no-op; fills arrive on the feed channel instead.
func (c *CopyTrade) Scan(_ context.Context) ([]domain.Opportunity, error) {
	return nil, nil
}

// Execute is a no-op for the same reason.
func (c *CopyTrade) Execute(_ context.Context, _ []domain.Opportunity) (int, error) {
	return 0, nil
}

// Performance reports trailing results from the ledger.
func (c *CopyTrade) Performance() domain.Performance {
	return c.book.GetPerformance(c.Name(), c.exec.Universe())
}

// RunLoop streams competitor fills until ctx is cancelled. The retry queue is
// drained before each new fill is ingested so stale queued orders get their
// shot at a freshly opened window first.
func (c *CopyTrade) RunLoop(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.fills.Run(ctx)
	})
	g.Go(func() error {
		return c.consume(ctx)
	})
	return g.Wait()
}

func (c *CopyTrade) consume(ctx context.Context) error {
	drain := time.NewTicker(c.cfg.DrainInterval)
	defer drain.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-drain.C:
			c.retries.Process(ctx)
		case fill, ok := <-c.fills.Events():
			if !ok {
				return nil
			}
			c.retries.Process(ctx)
			c.ingest(ctx, fill)
		}
	}
}

// ingest converts one competitor fill into a queued order. Resolution to a
// concrete ticker is attempted immediately; when the market window is not
// listed yet the trade is queued on its selector and resolved lazily.
func (c *CopyTrade) ingest(ctx context.Context, fill feed.CompetitorFill) {
	side := domain.SideYes
	if strings.EqualFold(fill.Side, "sell") || strings.EqualFold(fill.Side, "no") {
		side = domain.SideNo
	}

	contracts := int(fill.Size)
	if contracts > c.cfg.MaxContracts {
		contracts = c.cfg.MaxContracts
	}
	if contracts < 1 {
		contracts = 1
	}
	if fill.PriceCents < 1 || fill.PriceCents > 99 {
		c.logger.Debug("fill price out of range, ignoring",
			slog.String("market", fill.Market),
			slog.Int("price_cents", fill.PriceCents),
		)
		return
	}

	trade := domain.QueuedTrade{
		Source:     c.Name(),
		Selector:   fill.Market,
		Side:       side,
		PriceCents: fill.PriceCents,
		Contracts:  contracts,
		QueuedAt:   fill.Timestamp,
	}

	if ticker, err := c.ResolveTicker(ctx, trade); err == nil {
		trade.Ticker = ticker
	}

	c.logger.Info("copying competitor fill",
		slog.String("competitor", fill.Competitor),
		slog.String("selector", trade.Selector),
		slog.String("ticker", trade.Ticker),
		slog.String("side", string(side)),
		slog.Int("contracts", contracts),
	)
	c.retries.Enqueue(trade)
	c.retries.Process(ctx)
}

// ResolveTicker maps a queued trade's selector to a listed market ticker by
// keyword match against open market titles. It doubles as the retry queue's
// resolver for trades queued before their window existed.
func (c *CopyTrade) ResolveTicker(ctx context.Context, trade domain.QueuedTrade) (string, error) {
	tokens := selectorTokens(trade.Selector)
	if len(tokens) == 0 {
		return "", fmt.Errorf("copytrade: empty selector: %w", domain.ErrMarketNotFound)
	}

	markets, err := c.client.GetMarkets(ctx, domain.MarketFilter{Status: "open", Limit: 200})
	if err != nil {
		return "", fmt.Errorf("copytrade: list markets: %w", err)
	}

	for _, mkt := range markets {
		haystack := strings.ToLower(mkt.Title + " " + mkt.Ticker)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(haystack, tok) {
				matched = false
				break
			}
		}
		if matched {
			return mkt.Ticker, nil
		}
	}
	return "", fmt.Errorf("copytrade: no listed market for %q: %w", trade.Selector, domain.ErrMarketNotFound)
}

// selectorTokens splits a market selector into lowercase keywords, dropping
// filler words too short to discriminate.
func selectorTokens(selector string) []string {
	fields := strings.FieldsFunc(strings.ToLower(selector), func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '/'
	})
	var tokens []string
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
