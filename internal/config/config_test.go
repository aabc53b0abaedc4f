package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"

[bot]
initial_bankroll = 250.0
scan_interval = "90s"

[strategy.spread]
title_keywords = ["rain"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 250.0, cfg.Bot.InitialBankroll)
	assert.Equal(t, 90*time.Second, cfg.Bot.ScanInterval.Duration)
	assert.Equal(t, []string{"rain"}, cfg.Strategy.Spread.TitleKeywords)

	// Untouched fields keep their defaults.
	assert.True(t, cfg.Bot.DryRun)
	assert.Equal(t, 10, cfg.Queue.MaxRetries)
	assert.Equal(t, -0.30, cfg.Monitor.ExitLossPct)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[bot]
initial_bankroll = 250.0
`)
	t.Setenv("AGENT_BOT_INITIAL_BANKROLL", "500")
	t.Setenv("AGENT_BOT_DRY_RUN", "false")
	t.Setenv("AGENT_MONITOR_SYNC_INTERVAL", "2m")
	t.Setenv("AGENT_NOTIFY_EVENTS", "trade, error")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Bot.InitialBankroll)
	assert.False(t, cfg.Bot.DryRun)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.SyncInterval.Duration)
	assert.Equal(t, []string{"trade", "error"}, cfg.Notify.Events)
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Bot.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key_id")
	assert.Contains(t, err.Error(), "rsa_private_key_path")
}

func TestValidateCopyTradeNeedsFeed(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy.CopyTrade.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")
	assert.Contains(t, err.Error(), "competitor")
}

func TestValidateTradeModeNeedsAStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy.Spread.Enabled = false
	cfg.Strategy.CopyTrade.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one strategy")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	assert.Error(t, cfg.Validate())
}
