// Package config defines the top-level configuration for the trading agent
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AGENT_* environment variables.
type Config struct {
	Bot      BotConfig      `toml:"bot"`
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Risk     RiskConfig     `toml:"risk"`
	Queue    QueueConfig    `toml:"queue"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Journal  JournalConfig  `toml:"journal"`
	Notify   NotifyConfig   `toml:"notify"`
	Strategy StrategyConfig `toml:"strategy"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BotConfig holds top-level run parameters.
type BotConfig struct {
	InitialBankroll   float64  `toml:"initial_bankroll"`
	DataDir           string   `toml:"data_dir"`
	DryRun            bool     `toml:"dry_run"`
	ScanInterval      duration `toml:"scan_interval"`
	MaxTradesPerCycle int      `toml:"max_trades_per_cycle"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKeyID           string   `toml:"api_key_id"`
	RsaPrivateKeyPath  string   `toml:"rsa_private_key_path"`
	BaseURL            string   `toml:"base_url"`
	MinRequestInterval duration `toml:"min_request_interval"`
}

// RiskConfig holds bankroll protection parameters.
type RiskConfig struct {
	DailyLossLimit float64 `toml:"daily_loss_limit"`
	MaxExposurePct float64 `toml:"max_exposure_pct"`
	MinTradeSize   float64 `toml:"min_trade_size"`
}

// QueueConfig holds retry queue bounds.
type QueueConfig struct {
	MaxRetries int      `toml:"max_retries"`
	MaxAge     duration `toml:"max_age"`
}

// MonitorConfig holds position reconciliation parameters.
type MonitorConfig struct {
	SyncInterval duration `toml:"sync_interval"`
	ExitLossPct  float64  `toml:"exit_loss_pct"`
	ExitGainPct  float64  `toml:"exit_gain_pct"`
	HedgeEdge    float64  `toml:"hedge_edge"`
	HoldEdge     float64  `toml:"hold_edge"`
}

// JournalConfig holds the optional PostgreSQL trade journal connection. The
// journal is disabled when DSN is empty.
type JournalConfig struct {
	DSN string `toml:"dsn"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// StrategyConfig holds per-strategy parameters and initial allocations.
type StrategyConfig struct {
	Spread    SpreadConfig    `toml:"spread"`
	CopyTrade CopyTradeConfig `toml:"copytrade"`
}

// SpreadConfig holds config for the spread capture strategy.
type SpreadConfig struct {
	Enabled        bool     `toml:"enabled"`
	Allocation     float64  `toml:"allocation"`
	TitleKeywords  []string `toml:"title_keywords"`
	MinPriceCents  int      `toml:"min_price_cents"`
	MaxPriceCents  int      `toml:"max_price_cents"`
	MinSpreadCents int      `toml:"min_spread_cents"`
	MaxBidCents    int      `toml:"max_bid_cents"`
	MinEdge        float64  `toml:"min_edge"`
	MarketLimit    int      `toml:"market_limit"`
}

// CopyTradeConfig holds config for the copy trading strategy.
type CopyTradeConfig struct {
	Enabled       bool     `toml:"enabled"`
	Allocation    float64  `toml:"allocation"`
	WsURL         string   `toml:"ws_url"`
	Competitors   []string `toml:"competitors"`
	MaxContracts  int      `toml:"max_contracts"`
	DrainInterval duration `toml:"drain_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Bot: BotConfig{
			InitialBankroll:   100.0,
			DataDir:           "data",
			DryRun:            true,
			ScanInterval:      duration{5 * time.Minute},
			MaxTradesPerCycle: 3,
		},
		Kalshi: KalshiConfig{
			BaseURL:            "https://api.elections.kalshi.com/trade-api/v2",
			MinRequestInterval: duration{100 * time.Millisecond},
		},
		Risk: RiskConfig{
			DailyLossLimit: 0.10,
			MaxExposurePct: 0.30,
			MinTradeSize:   1.0,
		},
		Queue: QueueConfig{
			MaxRetries: 10,
			MaxAge:     duration{600 * time.Second},
		},
		Monitor: MonitorConfig{
			SyncInterval: duration{5 * time.Minute},
			ExitLossPct:  -0.30,
			ExitGainPct:  0.50,
			HedgeEdge:    0.05,
			HoldEdge:     0.15,
		},
		Notify: NotifyConfig{
			Events: []string{"trade", "exit", "error", "risk", "daily_summary"},
		},
		Strategy: StrategyConfig{
			Spread: SpreadConfig{
				Enabled:        true,
				Allocation:     0.5,
				TitleKeywords:  []string{"temp", "high"},
				MinPriceCents:  1,
				MaxPriceCents:  15,
				MinSpreadCents: 5,
				MaxBidCents:    10,
				MinEdge:        0.02,
				MarketLimit:    100,
			},
			CopyTrade: CopyTradeConfig{
				Enabled:       false,
				Allocation:    0.5,
				MaxContracts:  10,
				DrainInterval: duration{60 * time.Second},
			},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Bot.InitialBankroll <= 0 {
		errs = append(errs, "bot: initial_bankroll must be > 0")
	}
	if c.Bot.DataDir == "" {
		errs = append(errs, "bot: data_dir must not be empty")
	}
	if c.Bot.ScanInterval.Duration <= 0 {
		errs = append(errs, "bot: scan_interval must be > 0")
	}
	if c.Bot.MaxTradesPerCycle < 1 {
		errs = append(errs, "bot: max_trades_per_cycle must be >= 1")
	}

	// Kalshi credentials are only needed when real orders can be placed.
	if !c.Bot.DryRun {
		if c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required when dry_run is off")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required when dry_run is off")
		}
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit >= 1 {
		errs = append(errs, "risk: daily_loss_limit must be in (0, 1)")
	}
	if c.Risk.MaxExposurePct <= 0 || c.Risk.MaxExposurePct > 1 {
		errs = append(errs, "risk: max_exposure_pct must be in (0, 1]")
	}
	if c.Risk.MinTradeSize < 0 {
		errs = append(errs, "risk: min_trade_size must be >= 0")
	}

	if c.Queue.MaxRetries < 1 {
		errs = append(errs, "queue: max_retries must be >= 1")
	}
	if c.Queue.MaxAge.Duration <= 0 {
		errs = append(errs, "queue: max_age must be > 0")
	}

	if c.Monitor.SyncInterval.Duration <= 0 {
		errs = append(errs, "monitor: sync_interval must be > 0")
	}
	if c.Monitor.ExitLossPct >= 0 {
		errs = append(errs, "monitor: exit_loss_pct must be negative")
	}
	if c.Monitor.ExitGainPct <= 0 {
		errs = append(errs, "monitor: exit_gain_pct must be positive")
	}

	if c.Strategy.CopyTrade.Enabled {
		if c.Strategy.CopyTrade.WsURL == "" {
			errs = append(errs, "strategy.copytrade: ws_url is required when enabled")
		}
		if len(c.Strategy.CopyTrade.Competitors) == 0 {
			errs = append(errs, "strategy.copytrade: at least one competitor is required when enabled")
		}
	}
	if !c.Strategy.Spread.Enabled && !c.Strategy.CopyTrade.Enabled && c.Mode == "trade" {
		errs = append(errs, "strategy: at least one strategy must be enabled in trade mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
