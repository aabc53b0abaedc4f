package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tradingagent/internal/config"
	"tradingagent/internal/domain"
	"tradingagent/internal/exchange/kalshi"
	"tradingagent/internal/executor"
	"tradingagent/internal/feed"
	journalpg "tradingagent/internal/journal/postgres"
	"tradingagent/internal/ledger"
	"tradingagent/internal/monitor"
	"tradingagent/internal/notify"
	"tradingagent/internal/queue"
	"tradingagent/internal/risk"
	"tradingagent/internal/scheduler"
	"tradingagent/internal/strategy"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Client    domain.ExchangeClient
	Ledger    *ledger.Ledger
	Risk      *risk.Manager
	Queue     *queue.RetryQueue
	Executor  *executor.Executor
	Monitor   *monitor.Monitor
	Scheduler *scheduler.Scheduler
	Notifier  *notify.Notifier
	Journal   *journalpg.Journal
}

// journalAdapter bridges the batch-oriented journal to the monitor's
// one-record interface.
type journalAdapter struct {
	j *journalpg.Journal
}

func (a journalAdapter) Record(ctx context.Context, rec domain.TradeRecord) error {
	return a.j.Record(ctx, []domain.TradeRecord{rec})
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange client ---
	var keyPEM []byte
	if cfg.Kalshi.RsaPrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: read kalshi private key: %w", err)
		}
		keyPEM = pem
	}
	client, err := kalshi.NewClient(kalshi.Config{
		BaseURL:            cfg.Kalshi.BaseURL,
		APIKeyID:           cfg.Kalshi.ApiKeyID,
		PrivateKeyPEM:      keyPEM,
		MinRequestInterval: cfg.Kalshi.MinRequestInterval.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: kalshi client: %w", err)
	}
	deps.Client = client

	// --- Ledger ---
	book, err := ledger.New(cfg.Bot.DataDir, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	deps.Ledger = book

	// --- Risk manager ---
	deps.Risk = risk.NewManager(risk.Config{
		InitialBankroll: cfg.Bot.InitialBankroll,
		DailyLossLimit:  cfg.Risk.DailyLossLimit,
		MaxExposurePct:  cfg.Risk.MaxExposurePct,
		MinTradeSize:    cfg.Risk.MinTradeSize,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		footer := "trading agent - LIVE"
		if cfg.Bot.DryRun {
			footer = "trading agent - SIMULATION"
		}
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, footer))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	// --- Executor and retry queue ---
	exec := executor.New(executor.Config{
		DryRun:            cfg.Bot.DryRun,
		InitialBankroll:   cfg.Bot.InitialBankroll,
		MaxTradesPerCycle: cfg.Bot.MaxTradesPerCycle,
	}, client, book, deps.Risk, deps.Notifier, logger)
	deps.Executor = exec

	// The queue's resolver is bound after the copytrade strategy exists; the
	// indirection lets the queue be handed to the executor first.
	var resolver queue.ResolveFunc
	retries := queue.New(exec.SubmitQueued, logger,
		queue.WithMaxRetries(cfg.Queue.MaxRetries),
		queue.WithMaxAge(cfg.Queue.MaxAge.Duration),
		queue.WithResolver(func(ctx context.Context, t domain.QueuedTrade) (string, error) {
			if resolver == nil {
				return "", domain.ErrMarketNotFound
			}
			return resolver(ctx, t)
		}),
	)
	exec.SetRetryQueue(retries)
	deps.Queue = retries

	// --- Trade journal (optional) ---
	var journal monitor.TradeJournal
	if cfg.Journal.DSN != "" {
		j, err := journalpg.New(ctx, cfg.Journal.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: journal: %w", err)
		}
		closers = append(closers, j.Close)
		deps.Journal = j
		journal = journalAdapter{j: j}
	}

	// --- Monitor ---
	deps.Monitor = monitor.New(monitor.Config{
		StopLossPct:   cfg.Monitor.ExitLossPct,
		TakeProfitPct: cfg.Monitor.ExitGainPct,
		EdgeThreshold: cfg.Monitor.HedgeEdge,
		HoldEdge:      cfg.Monitor.HoldEdge,
		SyncInterval:  cfg.Monitor.SyncInterval.Duration,
	}, book, client, deps.Risk, journal, logger)

	// --- Scheduler and strategies ---
	sched := scheduler.New(deps.Monitor, logger)
	if cfg.Strategy.Spread.Enabled {
		spread := strategy.NewSpread(strategy.SpreadConfig{
			TitleKeywords:  cfg.Strategy.Spread.TitleKeywords,
			MinPriceCents:  cfg.Strategy.Spread.MinPriceCents,
			MaxPriceCents:  cfg.Strategy.Spread.MaxPriceCents,
			MinSpreadCents: cfg.Strategy.Spread.MinSpreadCents,
			MaxBidCents:    cfg.Strategy.Spread.MaxBidCents,
			MinEdge:        cfg.Strategy.Spread.MinEdge,
			MarketLimit:    cfg.Strategy.Spread.MarketLimit,
		}, client, exec, book, logger)
		sched.RegisterWithInterval(spread, cfg.Strategy.Spread.Allocation, cfg.Bot.ScanInterval.Duration)
	}
	if cfg.Strategy.CopyTrade.Enabled {
		fills := feed.NewCompetitorFeed(cfg.Strategy.CopyTrade.WsURL, cfg.Strategy.CopyTrade.Competitors, logger)
		copyTrade := strategy.NewCopyTrade(strategy.CopyTradeConfig{
			MaxContracts:  cfg.Strategy.CopyTrade.MaxContracts,
			DrainInterval: cfg.Strategy.CopyTrade.DrainInterval.Duration,
		}, fills, client, retries, exec, book, logger)
		resolver = copyTrade.ResolveTicker
		sched.RegisterWithInterval(copyTrade, cfg.Strategy.CopyTrade.Allocation, cfg.Bot.ScanInterval.Duration)
	}
	deps.Scheduler = sched

	return deps, cleanup, nil
}
