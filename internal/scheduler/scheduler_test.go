package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStrategy is a scriptable cyclic strategy.
type fakeStrategy struct {
	name    string
	cycles  atomic.Int32
	scanErr error
	panics  bool
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Scan(_ context.Context) ([]domain.Opportunity, error) {
	f.cycles.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return []domain.Opportunity{{Ticker: "T"}}, nil
}

func (f *fakeStrategy) Execute(_ context.Context, opps []domain.Opportunity) (int, error) {
	return len(opps), nil
}

func (f *fakeStrategy) Performance() domain.Performance {
	return domain.Performance{TotalPnL: 1.0, WinRate: 0.5}
}

// continuousStrategy runs an event loop that blocks until cancelled.
type continuousStrategy struct {
	fakeStrategy
	loops atomic.Int32
}

func (c *continuousStrategy) RunLoop(ctx context.Context) error {
	c.loops.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunRequiresStrategies(t *testing.T) {
	s := New(nil, testLogger())
	err := s.Run(context.Background())
	require.Error(t, err)
}

func TestFailureIsolation(t *testing.T) {
	s := New(nil, testLogger())
	healthy := &fakeStrategy{name: "healthy"}
	panicky := &fakeStrategy{name: "panicky", panics: true}
	failing := &fakeStrategy{name: "failing", scanErr: errors.New("scan broke")}

	s.RegisterWithInterval(healthy, 0.4, 10*time.Millisecond)
	s.RegisterWithInterval(panicky, 0.3, 10*time.Millisecond)
	s.RegisterWithInterval(failing, 0.3, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	// Every strategy kept cycling despite its neighbors' failures.
	assert.Greater(t, healthy.cycles.Load(), int32(1))
	assert.Greater(t, panicky.cycles.Load(), int32(1))
	assert.Greater(t, failing.cycles.Load(), int32(1))

	// Failures are recorded against the failing strategy, not the healthy one.
	for _, r := range s.History("panicky") {
		assert.NotEmpty(t, r.Errors)
	}
	for _, r := range s.History("healthy") {
		assert.Empty(t, r.Errors)
		assert.Equal(t, 1, r.OpportunitiesFound)
		assert.Equal(t, 1, r.TradesExecuted)
	}
}

func TestContinuousStrategyHandsOverControl(t *testing.T) {
	s := New(nil, testLogger())
	cont := &continuousStrategy{fakeStrategy: fakeStrategy{name: "copytrade"}}
	s.RegisterWithInterval(cont, 1.0, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	// RunLoop ran; the scan/execute cycle never did.
	assert.GreaterOrEqual(t, cont.loops.Load(), int32(1))
	assert.Zero(t, cont.cycles.Load())
}

func TestHousekeeperRunsAlongside(t *testing.T) {
	var ran atomic.Bool
	hk := housekeeperFunc(func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return ctx.Err()
	})

	s := New(hk, testLogger())
	s.RegisterWithInterval(&fakeStrategy{name: "spread"}, 1.0, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.True(t, ran.Load())
}

type housekeeperFunc func(ctx context.Context) error

func (f housekeeperFunc) Run(ctx context.Context) error { return f(ctx) }

func TestAllocationsExposed(t *testing.T) {
	s := New(nil, testLogger())
	s.Register(&fakeStrategy{name: "spread"}, 0.6)
	s.Register(&fakeStrategy{name: "copytrade"}, 0.4)

	allocs := s.Allocations()
	var sum float64
	for _, v := range allocs {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
