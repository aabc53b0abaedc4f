package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSubmit counts attempts and returns the configured error.
type recordingSubmit struct {
	attempts []domain.QueuedTrade
	err      error
}

func (r *recordingSubmit) submit(_ context.Context, trade domain.QueuedTrade) error {
	r.attempts = append(r.attempts, trade)
	return r.err
}

func TestProcessSuccessDrainsQueue(t *testing.T) {
	rec := &recordingSubmit{}
	q := New(rec.submit, testLogger())

	q.Enqueue(domain.QueuedTrade{Ticker: "A", Source: "spread"})
	q.Enqueue(domain.QueuedTrade{Ticker: "B", Source: "spread"})

	n := q.Process(context.Background())
	assert.Equal(t, 2, n)
	assert.Zero(t, q.Len())
	require.Len(t, rec.attempts, 2)
	// Retry count was incremented before the attempt.
	assert.Equal(t, 1, rec.attempts[0].RetryCount)
}

func TestExpiredTradeDroppedWithoutAttempt(t *testing.T) {
	now := time.Now()
	rec := &recordingSubmit{}
	q := New(rec.submit, testLogger(),
		WithMaxAge(600*time.Second),
		WithClock(func() time.Time { return now }),
	)

	// Queued 700 seconds ago: past the TTL, dropped before any attempt.
	q.Enqueue(domain.QueuedTrade{Ticker: "OLD", QueuedAt: now.Add(-700 * time.Second)})

	n := q.Process(context.Background())
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
	assert.Empty(t, rec.attempts)
}

func TestRetryExhaustedDroppedWithoutAttempt(t *testing.T) {
	rec := &recordingSubmit{err: domain.ErrMarketNotFound}
	q := New(rec.submit, testLogger(), WithMaxRetries(10))

	q.Enqueue(domain.QueuedTrade{Ticker: "TIRED", RetryCount: 10})

	n := q.Process(context.Background())
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
	assert.Empty(t, rec.attempts)
}

func TestTransientFailureKeepsTrade(t *testing.T) {
	rec := &recordingSubmit{err: domain.ErrMarketClosed}
	q := New(rec.submit, testLogger())

	q.Enqueue(domain.QueuedTrade{Ticker: "SOON"})

	n := q.Process(context.Background())
	assert.Zero(t, n)
	assert.Equal(t, 1, q.Len())
	assert.Len(t, rec.attempts, 1)

	// Each pass attempts exactly once and increments the count.
	q.Process(context.Background())
	require.Len(t, rec.attempts, 2)
	assert.Equal(t, 2, rec.attempts[1].RetryCount)
}

func TestPermanentFailureDropsTrade(t *testing.T) {
	rec := &recordingSubmit{err: errors.New("insufficient balance")}
	q := New(rec.submit, testLogger())

	q.Enqueue(domain.QueuedTrade{Ticker: "BAD"})

	n := q.Process(context.Background())
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
	assert.Len(t, rec.attempts, 1)
}

func TestResolverFillsEmptyTicker(t *testing.T) {
	rec := &recordingSubmit{}
	q := New(rec.submit, testLogger(),
		WithResolver(func(_ context.Context, trade domain.QueuedTrade) (string, error) {
			assert.Equal(t, "nyc-high-temp", trade.Selector)
			return "KXHIGHNY-25AUG27-B85", nil
		}),
	)

	q.Enqueue(domain.QueuedTrade{Selector: "nyc-high-temp"})

	n := q.Process(context.Background())
	assert.Equal(t, 1, n)
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, "KXHIGHNY-25AUG27-B85", rec.attempts[0].Ticker)
}

func TestUnresolvableTradeKeptForNextPass(t *testing.T) {
	rec := &recordingSubmit{}
	q := New(rec.submit, testLogger(),
		WithResolver(func(_ context.Context, _ domain.QueuedTrade) (string, error) {
			return "", domain.ErrMarketNotFound
		}),
	)

	q.Enqueue(domain.QueuedTrade{Selector: "not-listed-yet"})

	n := q.Process(context.Background())
	assert.Zero(t, n)
	assert.Equal(t, 1, q.Len())
	// No submission without a concrete ticker.
	assert.Empty(t, rec.attempts)
}
