// Package scheduler runs registered strategies concurrently and in
// isolation, tracks their trailing results, and periodically rebalances the
// capital allocation across them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradingagent/internal/domain"
	"tradingagent/internal/strategy"
)

const (
	// DefaultInterval is the sleep between scan/execute cycles.
	DefaultInterval = 300 * time.Second
	// optimizeEvery triggers allocation optimization every N cycles.
	optimizeEvery = 12
	// historyCap bounds the trailing result history kept per strategy.
	historyCap = 100
)

// registration pairs a strategy with its cycle interval.
type registration struct {
	strat    strategy.Strategy
	interval time.Duration
}

// Housekeeper is a long-running companion task (reconciliation sync,
// allocation refresh) started alongside the strategies.
type Housekeeper interface {
	Run(ctx context.Context) error
}

// Scheduler drives all registered strategies. Each strategy gets one
// independent goroutine; a failure inside any strategy loop is contained,
// logged, and the loop resumes after its normal interval.
type Scheduler struct {
	regs        []registration
	alloc       *Allocator
	housekeeper Housekeeper
	logger      *slog.Logger
}

// New creates an empty Scheduler. housekeeper may be nil.
func New(housekeeper Housekeeper, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		alloc:       NewAllocator(),
		housekeeper: housekeeper,
		logger:      logger.With(slog.String("component", "scheduler")),
	}
}

// Register adds a strategy with an initial capital allocation and the
// default cycle interval.
func (s *Scheduler) Register(strat strategy.Strategy, allocation float64) {
	s.RegisterWithInterval(strat, allocation, DefaultInterval)
}

// RegisterWithInterval adds a strategy with a custom cycle interval.
func (s *Scheduler) RegisterWithInterval(strat strategy.Strategy, allocation float64, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.regs = append(s.regs, registration{strat: strat, interval: interval})
	s.alloc.Add(strat.Name(), allocation)
	s.logger.Info("registered strategy",
		slog.String("strategy", strat.Name()),
		slog.Float64("allocation", allocation),
		slog.Duration("interval", interval),
	)
}

// Allocations returns the current capital allocation per strategy.
func (s *Scheduler) Allocations() map[string]float64 {
	return s.alloc.Snapshot()
}

// History returns the trailing results recorded for a strategy.
func (s *Scheduler) History(name string) []domain.StrategyResult {
	return s.alloc.History(name)
}

// Run starts one goroutine per registered strategy plus the housekeeper and
// blocks until ctx is cancelled. Strategy errors never propagate between
// strategies or out of Run.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.regs) == 0 {
		return fmt.Errorf("scheduler: no strategies registered")
	}

	s.logger.Info("scheduler starting", slog.Int("strategies", len(s.regs)))

	g, ctx := errgroup.WithContext(ctx)

	for _, reg := range s.regs {
		reg := reg
		g.Go(func() error {
			s.runStrategy(ctx, reg)
			return nil
		})
	}

	if s.housekeeper != nil {
		g.Go(func() error {
			if err := s.housekeeper.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("housekeeper stopped",
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runStrategy is the wrapper boundary for one strategy. Continuous
// strategies hand over control entirely; cyclic ones get scan/execute
// cycles. Any panic or error is contained here.
func (s *Scheduler) runStrategy(ctx context.Context, reg registration) {
	name := reg.strat.Name()
	logger := s.logger.With(slog.String("strategy", name))

	if ct, ok := reg.strat.(strategy.ContinuousTrader); ok {
		s.runContinuous(ctx, name, ct, reg.interval, logger)
		return
	}

	cycle := 0
	for {
		if ctx.Err() != nil {
			return
		}

		result := s.runCycle(ctx, reg.strat, logger)
		s.alloc.Record(result)

		cycle++
		if cycle%optimizeEvery == 0 {
			s.optimize(logger)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reg.interval):
		}
	}
}

// runContinuous starts a strategy's own loop and restarts it after one
// interval when it fails.
func (s *Scheduler) runContinuous(ctx context.Context, name string, ct strategy.ContinuousTrader, interval time.Duration, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return ct.RunLoop(ctx)
		}()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("continuous loop failed, restarting after interval",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// runCycle executes one scan/execute cycle. Scan fully completes before
// Execute begins. Panics and errors are converted into a result with the
// error recorded, so the loop always resumes.
func (s *Scheduler) runCycle(ctx context.Context, strat strategy.Strategy, logger *slog.Logger) (result domain.StrategyResult) {
	start := time.Now()
	result.Name = strat.Name()

	defer func() {
		result.Runtime = time.Since(start)
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", r))
			logger.Error("strategy cycle panicked",
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	opportunities, err := strat.Scan(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logger.Error("scan failed", slog.String("error", err.Error()))
		return result
	}
	result.OpportunitiesFound = len(opportunities)

	executed, err := strat.Execute(ctx, opportunities)
	result.TradesExecuted = executed
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logger.Error("execute failed", slog.String("error", err.Error()))
	}

	perf := strat.Performance()
	result.ProfitLoss = perf.TotalPnL
	result.WinRate = perf.WinRate

	logger.Info("cycle complete",
		slog.Int("opportunities", result.OpportunitiesFound),
		slog.Int("executed", result.TradesExecuted),
		slog.Float64("total_pnl", result.ProfitLoss),
		slog.Duration("runtime", result.Runtime),
	)
	return result
}

func (s *Scheduler) optimize(logger *slog.Logger) {
	changed := s.alloc.Optimize()
	if !changed {
		return
	}
	for name, alloc := range s.alloc.Snapshot() {
		logger.Info("allocation updated",
			slog.String("strategy", name),
			slog.Float64("allocation", alloc),
		)
	}
}
