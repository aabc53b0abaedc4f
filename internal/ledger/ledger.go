// Package ledger implements the durable position ledger. Positions live in
// two independent universes (real and simulated), each persisted as one JSON
// document mapping ticker to position. Every mutation is written through an
// atomic temp-file-then-rename sequence so a crash mid-write never corrupts
// the previous valid state.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradingagent/internal/domain"
)

const (
	realFileName      = "positions.json"
	simulatedFileName = "simulated_positions.json"
)

// universe is one independently locked and persisted position map.
type universe struct {
	mu        sync.RWMutex
	path      string
	positions map[string]*domain.Position
}

// Ledger tracks all positions across both universes. Mutations are
// serialized per universe; reads may run concurrently.
type Ledger struct {
	dataDir   string
	real      *universe
	simulated *universe
	logger    *slog.Logger
}

// New creates a Ledger rooted at dataDir, creating the directory if needed,
// and loads any previously persisted state. A universe whose file fails to
// deserialize is quarantined and started empty; load never aborts startup.
func New(dataDir string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}

	l := &Ledger{
		dataDir: dataDir,
		real: &universe{
			path:      filepath.Join(dataDir, realFileName),
			positions: make(map[string]*domain.Position),
		},
		simulated: &universe{
			path:      filepath.Join(dataDir, simulatedFileName),
			positions: make(map[string]*domain.Position),
		},
		logger: logger.With(slog.String("component", "ledger")),
	}

	l.load(l.real, domain.UniverseReal)
	l.load(l.simulated, domain.UniverseSimulated)

	return l, nil
}

func (l *Ledger) universe(u domain.Universe) *universe {
	if u == domain.UniverseSimulated {
		return l.simulated
	}
	return l.real
}

// load reads one universe file into memory. Corrupt files are renamed with a
// timestamp suffix so the raw bytes survive for inspection.
func (l *Ledger) load(uni *universe, name domain.Universe) {
	data, err := os.ReadFile(uni.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("could not read ledger file",
				slog.String("universe", string(name)),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	var m map[string]*domain.Position
	if err := json.Unmarshal(data, &m); err != nil {
		l.quarantine(uni.path, name, err)
		return
	}

	uni.positions = m
	if uni.positions == nil {
		uni.positions = make(map[string]*domain.Position)
	}
	l.logger.Info("loaded positions",
		slog.String("universe", string(name)),
		slog.Int("count", len(uni.positions)),
	)
}

// quarantine renames a corrupt ledger file out of the way so the universe
// can start empty instead of failing startup.
func (l *Ledger) quarantine(path string, name domain.Universe, cause error) {
	backup := fmt.Sprintf("%s.corrupted.%s", path, time.Now().Format("20060102150405"))
	if err := os.Rename(path, backup); err != nil {
		l.logger.Error("could not quarantine corrupt ledger file",
			slog.String("universe", string(name)),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.Warn("quarantined corrupt ledger file",
		slog.String("universe", string(name)),
		slog.String("backup", backup),
		slog.String("cause", cause.Error()),
	)
}

// save serializes one universe to disk. Callers must hold the universe
// write lock. On any failure the temp file is removed and in-memory state is
// left unchanged.
func (l *Ledger) save(uni *universe) error {
	data, err := json.MarshalIndent(uni.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal positions: %w", err)
	}

	tmp := uni.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: write temp file: %w", err)
	}
	if err := os.Rename(tmp, uni.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: rename temp file: %w", err)
	}
	return nil
}

// HasOpenPosition reports whether an open position exists for ticker in the
// given universe. Closed and cancelled positions do not count.
func (l *Ledger) HasOpenPosition(ticker string, u domain.Universe) bool {
	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	pos, ok := uni.positions[ticker]
	return ok && pos.Status == domain.PositionStatusOpen
}

// OpenPosition records a new position. When dedupe is true and an open
// position already exists for the ticker, it returns (nil, nil): the skip is
// a no-op, not an error. The dedupe key is the ticker alone, so two
// strategies cannot both hold the same market within one universe.
func (l *Ledger) OpenPosition(ticker string, side domain.Side, contracts int, entryPrice int, strategy string, u domain.Universe, marketTitle string, dedupe bool) (*domain.Position, error) {
	uni := l.universe(u)
	uni.mu.Lock()
	defer uni.mu.Unlock()

	if dedupe {
		if existing, ok := uni.positions[ticker]; ok && existing.Status == domain.PositionStatusOpen {
			l.logger.Debug("skipping duplicate open position",
				slog.String("ticker", ticker),
				slog.String("universe", string(u)),
			)
			return nil, nil
		}
	}

	pos := &domain.Position{
		Ticker:      ticker,
		Side:        side,
		Contracts:   contracts,
		EntryPrice:  entryPrice,
		EntryTime:   time.Now().UTC(),
		Strategy:    strategy,
		Simulated:   u == domain.UniverseSimulated,
		MarketTitle: marketTitle,
		Status:      domain.PositionStatusOpen,
	}

	prev, hadPrev := uni.positions[ticker]
	uni.positions[ticker] = pos
	if err := l.save(uni); err != nil {
		// Durable write failed: roll back the in-memory mutation.
		if hadPrev {
			uni.positions[ticker] = prev
		} else {
			delete(uni.positions, ticker)
		}
		return nil, err
	}

	l.logger.Info("opened position",
		slog.String("universe", string(u)),
		slog.String("ticker", ticker),
		slog.String("side", string(side)),
		slog.Int("contracts", contracts),
		slog.Int("entry_price", entryPrice),
		slog.String("strategy", strategy),
	)
	return pos, nil
}

// ClosePosition transitions an open position to closed, setting exit price,
// exit time, and realized pnl exactly once. It returns (nil, nil) when the
// ticker is unknown in the universe.
func (l *Ledger) ClosePosition(ticker string, exitPrice int, pnl float64, u domain.Universe) (*domain.Position, error) {
	uni := l.universe(u)
	uni.mu.Lock()
	defer uni.mu.Unlock()

	pos, ok := uni.positions[ticker]
	if !ok {
		l.logger.Warn("cannot close unknown position",
			slog.String("ticker", ticker),
			slog.String("universe", string(u)),
		)
		return nil, nil
	}

	prev := *pos
	now := time.Now().UTC()
	pos.Status = domain.PositionStatusClosed
	pos.ExitPrice = &exitPrice
	pos.ExitTime = &now
	pos.PnL = &pnl

	if err := l.save(uni); err != nil {
		*pos = prev
		return nil, err
	}

	l.logger.Info("closed position",
		slog.String("universe", string(u)),
		slog.String("ticker", ticker),
		slog.Int("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
	)
	return pos, nil
}

// GetPosition returns the position for ticker, open or not, or nil.
func (l *Ledger) GetPosition(ticker string, u domain.Universe) *domain.Position {
	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	pos, ok := uni.positions[ticker]
	if !ok {
		return nil
	}
	cp := *pos
	return &cp
}

// GetOpenPositions returns all open positions in the universe, optionally
// filtered to one strategy. Strategy "" means all strategies.
func (l *Ledger) GetOpenPositions(strategy string, u domain.Universe) []domain.Position {
	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	var out []domain.Position
	for _, pos := range uni.positions {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		if strategy != "" && pos.Strategy != strategy {
			continue
		}
		out = append(out, *pos)
	}
	return out
}

// OpenNotional returns the total dollar notional of open positions in the
// universe, used by the exposure gate.
func (l *Ledger) OpenNotional(u domain.Universe) float64 {
	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	var total float64
	for _, pos := range uni.positions {
		if pos.Status == domain.PositionStatusOpen {
			total += pos.Notional()
		}
	}
	return total
}

// GetPerformance aggregates closed-trade outcomes for the universe,
// optionally filtered to one strategy.
func (l *Ledger) GetPerformance(strategy string, u domain.Universe) domain.Performance {
	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	var perf domain.Performance
	for _, pos := range uni.positions {
		if strategy != "" && pos.Strategy != strategy {
			continue
		}
		switch {
		case pos.Status == domain.PositionStatusOpen:
			perf.OpenCount++
		case pos.Status == domain.PositionStatusClosed && pos.PnL != nil:
			perf.Trades++
			perf.TotalPnL += *pos.PnL
			if *pos.PnL > 0 {
				perf.WinningTrades++
			}
		}
	}
	if perf.Trades > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(perf.Trades)
		perf.AvgPnLPerTrade = perf.TotalPnL / float64(perf.Trades)
	}
	return perf
}

// GetDailyPerformance summarises activity for one calendar day (UTC),
// defaulting to today when date is the zero time.
func (l *Ledger) GetDailyPerformance(strategy string, u domain.Universe, date time.Time) domain.DailyPerformance {
	if date.IsZero() {
		date = time.Now().UTC()
	}
	day := date.Format("2006-01-02")

	uni := l.universe(u)
	uni.mu.RLock()
	defer uni.mu.RUnlock()

	perf := domain.DailyPerformance{Date: day, Strategy: strategy}
	if strategy == "" {
		perf.Strategy = "all"
	}
	seen := make(map[string]struct{})
	for _, pos := range uni.positions {
		if pos.EntryTime.UTC().Format("2006-01-02") != day {
			continue
		}
		if strategy != "" && pos.Strategy != strategy {
			continue
		}
		perf.TotalTrades++
		if _, ok := seen[pos.Ticker]; !ok {
			seen[pos.Ticker] = struct{}{}
			perf.Tickers = append(perf.Tickers, pos.Ticker)
		}
		if pos.Status == domain.PositionStatusClosed && pos.PnL != nil {
			perf.ClosedTrades++
			perf.TotalPnL += *pos.PnL
		}
	}
	perf.UniqueMarkets = len(seen)
	return perf
}

// ClearSimulated drops all simulated positions, optionally writing a dated
// backup first. Used for the weekly strategy-competition reset.
func (l *Ledger) ClearSimulated(backup bool) error {
	uni := l.simulated
	uni.mu.Lock()
	defer uni.mu.Unlock()

	if backup && len(uni.positions) > 0 {
		data, err := json.MarshalIndent(uni.positions, "", "  ")
		if err == nil {
			backupPath := filepath.Join(l.dataDir,
				fmt.Sprintf("simulated_positions.backup.%s.json", time.Now().Format("20060102")))
			if werr := os.WriteFile(backupPath, data, 0o644); werr != nil {
				l.logger.Warn("could not back up simulated positions",
					slog.String("error", werr.Error()),
				)
			}
		}
	}

	count := len(uni.positions)
	uni.positions = make(map[string]*domain.Position)
	if err := l.save(uni); err != nil {
		return err
	}
	l.logger.Info("cleared simulated positions", slog.Int("count", count))
	return nil
}
