package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradingagent/internal/domain"
	"tradingagent/internal/monitor"
)

// TradeMode runs the full strategy scheduler. The monitor runs inside the
// scheduler as its housekeeper, reconciling the ledger on its own interval.
// A daily ticker resets the risk manager's loss counter at midnight UTC.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Scheduler.Run(ctx)
	})
	g.Go(func() error {
		return a.runDailyReset(ctx, deps)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// MonitorMode runs reconciliation and position analysis without trading:
// useful for watching an existing book while the strategies are paused.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	g.Go(func() error {
		return a.runPositionChecks(ctx, deps)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// runPositionChecks periodically analyzes open positions in both universes
// and logs recommendations. Edge is unknown outside a strategy context and
// defaults to zero.
func (a *App) runPositionChecks(ctx context.Context, deps *Dependencies) error {
	marketData := func(ctx context.Context, ticker string) (monitor.MarketData, error) {
		mkt, err := deps.Client.GetMarket(ctx, ticker)
		if err != nil {
			return monitor.MarketData{}, err
		}
		price := mkt.LastPrice
		if price == 0 {
			price = mkt.YesBid
		}
		return monitor.MarketData{PriceCents: price}, nil
	}

	ticker := time.NewTicker(a.cfg.Monitor.SyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, u := range []domain.Universe{domain.UniverseReal, domain.UniverseSimulated} {
			states := deps.Monitor.CheckPositions(ctx, "", u, marketData)
			for _, hedge := range deps.Monitor.HedgeRecommendations(states) {
				a.logger.Warn("hedge recommendation",
					slog.String("ticker", hedge.Ticker),
					slog.String("hedge_side", string(hedge.HedgeSide)),
					slog.Int("hedge_size", hedge.HedgeSize),
					slog.String("reason", hedge.Reason),
				)
			}
		}
	}
}

// runDailyReset clears the risk manager's daily loss counter at each UTC
// midnight and sends the previous day's summary.
func (a *App) runDailyReset(ctx context.Context, deps *Dependencies) error {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next.Sub(now)):
		}

		yesterday := time.Now().UTC().Add(-time.Hour)
		perf := deps.Ledger.GetDailyPerformance("", deps.Executor.Universe(), yesterday)
		a.logger.Info("daily rollover",
			slog.String("date", perf.Date),
			slog.Int("trades", perf.TotalTrades),
			slog.Int("closed", perf.ClosedTrades),
			slog.Float64("pnl", perf.TotalPnL),
		)
		deps.Notifier.Notify(ctx, "daily_summary", "Daily summary",
			dailySummaryMessage(perf))
		deps.Risk.ResetDailyStats()

		// Monday rollover also resets the simulated book, so the weekly
		// strategy competition starts from a level field.
		if time.Now().UTC().Weekday() == time.Monday {
			if err := deps.Ledger.ClearSimulated(true); err != nil {
				a.logger.Error("weekly simulated reset failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func dailySummaryMessage(perf domain.DailyPerformance) string {
	return fmt.Sprintf("date: %s\ntrades: %d\nclosed: %d\npnl: $%.2f",
		perf.Date, perf.TotalTrades, perf.ClosedTrades, perf.TotalPnL)
}
