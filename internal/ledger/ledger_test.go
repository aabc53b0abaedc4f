package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := New(dir, testLogger())
	require.NoError(t, err)
	return l, dir
}

func TestOpenPositionDedupe(t *testing.T) {
	l, _ := newTestLedger(t)

	pos, err := l.OpenPosition("BTC-TICK", domain.SideYes, 5, 40, "spread", domain.UniverseSimulated, "Bitcoin above 100k", true)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 5, pos.Contracts)
	assert.Equal(t, 40, pos.EntryPrice)

	// Second open on the same ticker is a silent no-op, not an error.
	dup, err := l.OpenPosition("BTC-TICK", domain.SideNo, 3, 55, "copytrade", domain.UniverseSimulated, "", true)
	require.NoError(t, err)
	assert.Nil(t, dup)

	// The original position is untouched.
	got := l.GetPosition("BTC-TICK", domain.UniverseSimulated)
	require.NotNil(t, got)
	assert.Equal(t, domain.SideYes, got.Side)
	assert.Equal(t, "spread", got.Strategy)
}

func TestUniversesAreIndependent(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.OpenPosition("SAME-TICK", domain.SideYes, 1, 10, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	// The same ticker can be held in the other universe.
	pos, err := l.OpenPosition("SAME-TICK", domain.SideYes, 1, 10, "spread", domain.UniverseSimulated, "", true)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.True(t, l.HasOpenPosition("SAME-TICK", domain.UniverseReal))
	assert.True(t, l.HasOpenPosition("SAME-TICK", domain.UniverseSimulated))
}

func TestRoundTripPersistence(t *testing.T) {
	l, dir := newTestLedger(t)

	_, err := l.OpenPosition("WX-NYC", domain.SideNo, 10, 25, "spread", domain.UniverseReal, "NYC high temp", true)
	require.NoError(t, err)
	_, err = l.ClosePosition("WX-NYC", 60, -3.5, domain.UniverseReal)
	require.NoError(t, err)

	// A fresh ledger over the same directory sees the identical state.
	reloaded, err := New(dir, testLogger())
	require.NoError(t, err)

	pos := reloaded.GetPosition("WX-NYC", domain.UniverseReal)
	require.NotNil(t, pos)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	require.NotNil(t, pos.ExitPrice)
	assert.Equal(t, 60, *pos.ExitPrice)
	require.NotNil(t, pos.PnL)
	assert.InDelta(t, -3.5, *pos.PnL, 1e-9)
}

func TestCorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, realFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l, err := New(dir, testLogger())
	require.NoError(t, err)

	// The universe starts empty and the corrupt bytes survive under a
	// timestamped name.
	assert.Empty(t, l.GetOpenPositions("", domain.UniverseReal))
	matches, err := filepath.Glob(path + ".corrupted.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestClosePositionUnknownTicker(t *testing.T) {
	l, _ := newTestLedger(t)

	pos, err := l.ClosePosition("NOPE", 50, 0, domain.UniverseReal)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestGetPerformance(t *testing.T) {
	l, _ := newTestLedger(t)

	open := func(ticker string, price int) {
		_, err := l.OpenPosition(ticker, domain.SideYes, 10, price, "spread", domain.UniverseSimulated, "", true)
		require.NoError(t, err)
	}
	open("A", 30)
	open("B", 30)
	open("C", 30)

	_, err := l.ClosePosition("A", 100, 7.0, domain.UniverseSimulated)
	require.NoError(t, err)
	_, err = l.ClosePosition("B", 0, -3.0, domain.UniverseSimulated)
	require.NoError(t, err)

	perf := l.GetPerformance("spread", domain.UniverseSimulated)
	assert.Equal(t, 2, perf.Trades)
	assert.Equal(t, 1, perf.WinningTrades)
	assert.InDelta(t, 0.5, perf.WinRate, 1e-9)
	assert.InDelta(t, 4.0, perf.TotalPnL, 1e-9)
	assert.Equal(t, 1, perf.OpenCount)
	assert.InDelta(t, 2.0, perf.AvgPnLPerTrade, 1e-9)
}

func TestOpenNotional(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.OpenPosition("A", domain.SideYes, 10, 40, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)
	_, err = l.OpenPosition("B", domain.SideNo, 5, 20, "spread", domain.UniverseReal, "", true)
	require.NoError(t, err)

	// 10*0.40 + 5*0.20
	assert.InDelta(t, 5.0, l.OpenNotional(domain.UniverseReal), 1e-9)
}

func TestClearSimulatedWithBackup(t *testing.T) {
	l, dir := newTestLedger(t)

	_, err := l.OpenPosition("SIM", domain.SideYes, 1, 10, "spread", domain.UniverseSimulated, "", true)
	require.NoError(t, err)

	require.NoError(t, l.ClearSimulated(true))
	assert.Empty(t, l.GetOpenPositions("", domain.UniverseSimulated))

	matches, err := filepath.Glob(filepath.Join(dir, "simulated_positions.backup.*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	var backup map[string]*domain.Position
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &backup))
	assert.Contains(t, backup, "SIM")
}
