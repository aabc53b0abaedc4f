package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Bot ──
	setFloat64(&cfg.Bot.InitialBankroll, "AGENT_BOT_INITIAL_BANKROLL")
	setStr(&cfg.Bot.DataDir, "AGENT_BOT_DATA_DIR")
	setBool(&cfg.Bot.DryRun, "AGENT_BOT_DRY_RUN")
	setDuration(&cfg.Bot.ScanInterval, "AGENT_BOT_SCAN_INTERVAL")
	setInt(&cfg.Bot.MaxTradesPerCycle, "AGENT_BOT_MAX_TRADES_PER_CYCLE")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKeyID, "AGENT_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "AGENT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "AGENT_KALSHI_BASE_URL")
	setDuration(&cfg.Kalshi.MinRequestInterval, "AGENT_KALSHI_MIN_REQUEST_INTERVAL")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossLimit, "AGENT_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.MaxExposurePct, "AGENT_RISK_MAX_EXPOSURE_PCT")
	setFloat64(&cfg.Risk.MinTradeSize, "AGENT_RISK_MIN_TRADE_SIZE")

	// ── Queue ──
	setInt(&cfg.Queue.MaxRetries, "AGENT_QUEUE_MAX_RETRIES")
	setDuration(&cfg.Queue.MaxAge, "AGENT_QUEUE_MAX_AGE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.SyncInterval, "AGENT_MONITOR_SYNC_INTERVAL")
	setFloat64(&cfg.Monitor.ExitLossPct, "AGENT_MONITOR_EXIT_LOSS_PCT")
	setFloat64(&cfg.Monitor.ExitGainPct, "AGENT_MONITOR_EXIT_GAIN_PCT")
	setFloat64(&cfg.Monitor.HedgeEdge, "AGENT_MONITOR_HEDGE_EDGE")
	setFloat64(&cfg.Monitor.HoldEdge, "AGENT_MONITOR_HOLD_EDGE")

	// ── Journal ──
	setStr(&cfg.Journal.DSN, "AGENT_JOURNAL_DSN")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "AGENT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGENT_NOTIFY_EVENTS")

	// ── Strategy ──
	setBool(&cfg.Strategy.Spread.Enabled, "AGENT_STRATEGY_SPREAD_ENABLED")
	setFloat64(&cfg.Strategy.Spread.Allocation, "AGENT_STRATEGY_SPREAD_ALLOCATION")
	setStringSlice(&cfg.Strategy.Spread.TitleKeywords, "AGENT_STRATEGY_SPREAD_TITLE_KEYWORDS")
	setBool(&cfg.Strategy.CopyTrade.Enabled, "AGENT_STRATEGY_COPYTRADE_ENABLED")
	setFloat64(&cfg.Strategy.CopyTrade.Allocation, "AGENT_STRATEGY_COPYTRADE_ALLOCATION")
	setStr(&cfg.Strategy.CopyTrade.WsURL, "AGENT_STRATEGY_COPYTRADE_WS_URL")
	setStringSlice(&cfg.Strategy.CopyTrade.Competitors, "AGENT_STRATEGY_COPYTRADE_COMPETITORS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AGENT_MODE")
	setStr(&cfg.LogLevel, "AGENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
