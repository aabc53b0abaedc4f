// Package executor turns strategy opportunities into sized, risk-checked
// orders. In dry-run mode trades are recorded straight into the simulated
// ledger universe; live trades go to the exchange, falling back to the retry
// queue when the target market window has already rolled over.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"tradingagent/internal/domain"
	"tradingagent/internal/ledger"
	"tradingagent/internal/queue"
	"tradingagent/internal/risk"
)

// Notifier delivers trade alerts. Optional.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds executor parameters.
type Config struct {
	DryRun            bool
	InitialBankroll   float64
	MaxTradesPerCycle int
}

// Executor submits trades on behalf of strategies.
type Executor struct {
	cfg      Config
	client   domain.ExchangeClient
	ledger   *ledger.Ledger
	risk     *risk.Manager
	retries  *queue.RetryQueue
	notifier Notifier
	logger   *slog.Logger
}

// New creates an Executor. The retry queue is attached afterwards via
// SetRetryQueue because the queue's submit function is the executor itself.
func New(cfg Config, client domain.ExchangeClient, lg *ledger.Ledger, rm *risk.Manager, notifier Notifier, logger *slog.Logger) *Executor {
	if cfg.MaxTradesPerCycle <= 0 {
		cfg.MaxTradesPerCycle = 3
	}
	return &Executor{
		cfg:      cfg,
		client:   client,
		ledger:   lg,
		risk:     rm,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// SetRetryQueue attaches the retry queue used for transient failures.
func (e *Executor) SetRetryQueue(q *queue.RetryQueue) {
	e.retries = q
}

// Universe returns the ledger universe this executor writes to.
func (e *Executor) Universe() domain.Universe {
	if e.cfg.DryRun {
		return domain.UniverseSimulated
	}
	return domain.UniverseReal
}

// Bankroll returns the current bankroll: exchange balance when live, initial
// bankroll adjusted by simulated pnl when dry-running.
func (e *Executor) Bankroll(ctx context.Context) (float64, error) {
	if e.cfg.DryRun {
		perf := e.ledger.GetPerformance("", domain.UniverseSimulated)
		return e.cfg.InitialBankroll + perf.TotalPnL, nil
	}
	bal, err := e.client.GetBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: get balance: %w", err)
	}
	return bal.Dollars(), nil
}

// ExecuteAll sizes and submits the best opportunities for a strategy,
// returning the number of trades placed. Opportunities beyond the per-cycle
// cap are ignored; individual failures are logged and do not stop the rest.
func (e *Executor) ExecuteAll(ctx context.Context, strategyName string, opportunities []domain.Opportunity) (int, error) {
	if len(opportunities) == 0 {
		return 0, nil
	}

	bankroll, err := e.Bankroll(ctx)
	if err != nil {
		return 0, err
	}
	if !e.risk.CanTrade(bankroll) {
		e.logger.Warn("risk limits hit, skipping cycle",
			slog.String("strategy", strategyName),
			slog.Float64("bankroll", bankroll),
		)
		return 0, nil
	}

	winRate := e.ledger.GetPerformance(strategyName, e.Universe()).WinRate
	profile := e.risk.GetProfile(bankroll, winRate)

	executed := 0
	for _, opp := range opportunities {
		if executed >= e.cfg.MaxTradesPerCycle {
			break
		}
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}

		ev := opp.ExpectedValue
		if ev == 0 {
			ev = e.risk.EV(opp.WinProbability, opp.Odds)
		}
		if ev < profile.MinEVThreshold {
			continue
		}

		placed, err := e.Execute(ctx, strategyName, opp, bankroll, winRate, ev)
		if err != nil {
			e.logger.Error("trade execution failed",
				slog.String("strategy", strategyName),
				slog.String("ticker", opp.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		if placed {
			executed++
		}
	}
	return executed, nil
}

// Execute sizes and submits one opportunity. It returns false without error
// when the trade is skipped (too small, no headroom, duplicate).
func (e *Executor) Execute(ctx context.Context, strategyName string, opp domain.Opportunity, bankroll, winRate, ev float64) (bool, error) {
	if opp.PriceCents < 1 || opp.PriceCents > 99 {
		return false, fmt.Errorf("executor: price %d out of range", opp.PriceCents)
	}

	size := e.risk.PositionSize(bankroll, winRate, ev, opp.Odds)
	if size <= 0 {
		e.logger.Debug("size below trade floor, skipping",
			slog.String("ticker", opp.Ticker),
		)
		return false, nil
	}

	// Exposure gate: clamp the candidate to the remaining headroom.
	headroom := e.risk.ExposureHeadroom(bankroll, e.ledger.OpenNotional(e.Universe()))
	if headroom <= 0 {
		e.logger.Warn("exposure cap reached, skipping trade",
			slog.String("ticker", opp.Ticker),
		)
		return false, nil
	}
	size = math.Min(size, headroom)

	contracts := int(size * 100 / float64(opp.PriceCents))
	if contracts < 1 {
		return false, nil
	}

	if e.ledger.HasOpenPosition(opp.Ticker, e.Universe()) {
		e.logger.Debug("already holding ticker, skipping",
			slog.String("ticker", opp.Ticker),
		)
		return false, nil
	}

	notional := float64(contracts) * float64(opp.PriceCents) / 100
	e.risk.ReserveExposure(notional)
	defer e.risk.ReleaseExposure(notional)

	if e.cfg.DryRun {
		pos, err := e.ledger.OpenPosition(opp.Ticker, opp.Side, contracts, opp.PriceCents,
			strategyName, domain.UniverseSimulated, opp.MarketTitle, true)
		if err != nil {
			return false, err
		}
		if pos == nil {
			return false, nil
		}
		e.notify(ctx, "trade", "Simulated trade",
			fmt.Sprintf("%s %s x%d @ %dc (%s)", opp.Ticker, opp.Side, contracts, opp.PriceCents, strategyName))
		return true, nil
	}

	_, err := e.client.PlaceOrder(ctx, domain.OrderRequest{
		Ticker:        opp.Ticker,
		Side:          opp.Side,
		PriceCents:    opp.PriceCents,
		Contracts:     contracts,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		if domain.IsTransientOrderErr(err) && e.retries != nil {
			e.retries.Enqueue(domain.QueuedTrade{
				Source:     strategyName,
				Ticker:     opp.Ticker,
				Side:       opp.Side,
				PriceCents: opp.PriceCents,
				Contracts:  contracts,
				QueuedAt:   time.Now().UTC(),
			})
			return false, nil
		}
		return false, fmt.Errorf("executor: place order: %w", err)
	}

	pos, err := e.ledger.OpenPosition(opp.Ticker, opp.Side, contracts, opp.PriceCents,
		strategyName, domain.UniverseReal, opp.MarketTitle, true)
	if err != nil {
		return false, err
	}
	if pos == nil {
		return false, nil
	}
	e.notify(ctx, "trade", "Trade placed",
		fmt.Sprintf("%s %s x%d @ %dc (%s)", opp.Ticker, opp.Side, contracts, opp.PriceCents, strategyName))
	return true, nil
}

// SubmitQueued is the retry queue's submit function: one execution attempt
// for a previously failed order. Successes are recorded into the ledger.
func (e *Executor) SubmitQueued(ctx context.Context, trade domain.QueuedTrade) error {
	if trade.Ticker == "" {
		return domain.ErrMarketNotFound
	}

	if e.ledger.HasOpenPosition(trade.Ticker, e.Universe()) {
		// Someone beat us to the market; nothing left to do.
		return nil
	}

	if !e.cfg.DryRun {
		_, err := e.client.PlaceOrder(ctx, domain.OrderRequest{
			Ticker:        trade.Ticker,
			Side:          trade.Side,
			PriceCents:    trade.PriceCents,
			Contracts:     trade.Contracts,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			return err
		}
	}

	_, err := e.ledger.OpenPosition(trade.Ticker, trade.Side, trade.Contracts,
		trade.PriceCents, trade.Source, e.Universe(), "", true)
	return err
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}
