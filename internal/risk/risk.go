// Package risk implements the bankroll-tier risk profile, Kelly-derived
// position sizing, daily-loss circuit breakers, and the shared notional
// exposure gate.
package risk

import (
	"log/slog"
	"math"
	"sync"
)

// Profile is the current risk posture, a pure function of bankroll and
// trailing win rate. Limits tighten monotonically as either worsens.
type Profile struct {
	Level           string
	MaxPositionPct  float64
	MinEVThreshold  float64
	KellyMultiplier float64
}

// Config holds the tunable risk parameters.
type Config struct {
	InitialBankroll float64
	DailyLossLimit  float64 // fraction of initial bankroll
	MaxExposurePct  float64 // cap on open notional as fraction of bankroll
	MinTradeSize    float64 // dollar floor below which sizes resolve to zero
}

// Manager sizes positions and gates trading on drawdown and exposure. It is
// shared by all strategies and safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu                sync.Mutex
	dailyLoss         float64
	consecutiveWins   int
	consecutiveLosses int
	reservedExposure  float64
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.MinTradeSize <= 0 {
		cfg.MinTradeSize = 1.0
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// GetProfile returns the risk profile for the given bankroll and trailing
// win rate. Poker-style: tighten on a downswing, loosen on a hot streak.
func (m *Manager) GetProfile(bankroll, winRate float64) Profile {
	initial := m.cfg.InitialBankroll

	if bankroll < initial*0.8 {
		return Profile{Level: "tight", MaxPositionPct: 0.01, MinEVThreshold: 0.10, KellyMultiplier: 0.10}
	}
	if bankroll < initial {
		return Profile{Level: "conservative", MaxPositionPct: 0.02, MinEVThreshold: 0.07, KellyMultiplier: 0.15}
	}
	if bankroll < initial*1.5 {
		if winRate > 0.55 {
			return Profile{Level: "moderate-aggressive", MaxPositionPct: 0.04, MinEVThreshold: 0.05, KellyMultiplier: 0.25}
		}
		return Profile{Level: "moderate", MaxPositionPct: 0.03, MinEVThreshold: 0.05, KellyMultiplier: 0.20}
	}
	if winRate > 0.60 {
		return Profile{Level: "aggressive", MaxPositionPct: 0.05, MinEVThreshold: 0.04, KellyMultiplier: 0.30}
	}
	return Profile{Level: "moderate-aggressive", MaxPositionPct: 0.04, MinEVThreshold: 0.05, KellyMultiplier: 0.25}
}

// EV computes expected value as a fraction of stake from an estimated win
// probability and decimal odds.
func (m *Manager) EV(winProb, odds float64) float64 {
	profit := odds - 1
	return winProb*profit - (1 - winProb)
}

// PositionSize computes a dollar position size using fractional Kelly. The
// implied win probability is derived from ev and odds, the full Kelly
// fraction is discounted by the profile's multiplier, and the result is
// capped at MaxPositionPct of bankroll. Sizes under the minimum trade floor
// resolve to zero; small sizes round to ten cents, larger to whole dollars.
func (m *Manager) PositionSize(bankroll, winRate, ev, odds float64) float64 {
	if odds <= 0 {
		return 0
	}
	profile := m.GetProfile(bankroll, winRate)

	winProb := (ev + 1) / odds
	lossProb := 1 - winProb
	kelly := (winProb*odds - lossProb) / odds

	pct := kelly * profile.KellyMultiplier
	pct = math.Min(pct, profile.MaxPositionPct)
	if pct <= 0 {
		return 0
	}

	size := bankroll * pct
	switch {
	case size < m.cfg.MinTradeSize:
		return 0
	case size < 5.0:
		return math.Round(size*10) / 10
	default:
		return math.Round(size)
	}
}

// CanTrade reports whether new trades are allowed. It is false once the
// realized daily loss reaches the configured fraction of the initial
// bankroll, or once bankroll has drawn down below 50% of initial.
func (m *Manager) CanTrade(bankroll float64) bool {
	m.mu.Lock()
	dailyLoss := m.dailyLoss
	m.mu.Unlock()

	initial := m.cfg.InitialBankroll
	if dailyLoss >= initial*m.cfg.DailyLossLimit {
		m.logger.Warn("daily loss limit reached",
			slog.Float64("daily_loss", dailyLoss),
			slog.Float64("limit", initial*m.cfg.DailyLossLimit),
		)
		return false
	}
	if bankroll < initial*0.5 {
		m.logger.Warn("drawdown circuit breaker tripped",
			slog.Float64("bankroll", bankroll),
			slog.Float64("initial", initial),
		)
		return false
	}
	return true
}

// RecordResult feeds a realized trade result into streak and daily-loss
// tracking.
func (m *Manager) RecordResult(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profit > 0 {
		m.consecutiveWins++
		m.consecutiveLosses = 0
		return
	}
	m.consecutiveLosses++
	m.consecutiveWins = 0
	m.dailyLoss += math.Abs(profit)
}

// ResetDailyStats clears the daily loss counter. Called at the day rollover.
func (m *Manager) ResetDailyStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLoss = 0
}

// Streaks returns the current consecutive win and loss counts.
func (m *Manager) Streaks() (wins, losses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveWins, m.consecutiveLosses
}

// ExposureHeadroom returns the dollar notional still available under the
// exposure cap, given the currently tracked open notional. In-flight
// reservations count against the cap.
func (m *Manager) ExposureHeadroom(bankroll, openNotional float64) float64 {
	m.mu.Lock()
	reserved := m.reservedExposure
	m.mu.Unlock()

	headroom := m.cfg.MaxExposurePct*bankroll - openNotional - reserved
	if headroom < 0 {
		return 0
	}
	return headroom
}

// ReserveExposure claims headroom for an order about to be submitted so two
// concurrent strategies cannot both spend the same capacity.
func (m *Manager) ReserveExposure(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedExposure += amount
}

// ReleaseExposure returns a reservation once the order has either landed in
// the ledger (where it counts as open notional) or failed.
func (m *Manager) ReleaseExposure(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedExposure -= amount
	if m.reservedExposure < 0 {
		m.reservedExposure = 0
	}
}
