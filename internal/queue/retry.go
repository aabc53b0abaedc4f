// Package queue implements the retry queue for order submissions that failed
// for transient reasons, typically because a time-boxed market window rolled
// over or closed between signal detection and execution.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tradingagent/internal/domain"
)

const (
	// DefaultMaxRetries bounds attempts per queued trade.
	DefaultMaxRetries = 10
	// DefaultMaxAge is the TTL after which a queued trade is dropped.
	DefaultMaxAge = 600 * time.Second
)

// SubmitFunc attempts to execute one queued trade. A nil error means the
// trade landed and has been recorded; transient errors keep the trade queued
// and any other error drops it.
type SubmitFunc func(ctx context.Context, trade domain.QueuedTrade) error

// ResolveFunc lazily resolves a trade's ticker selector to a concrete market
// ticker. It is only consulted while the trade's Ticker is empty.
type ResolveFunc func(ctx context.Context, trade domain.QueuedTrade) (string, error)

// RetryQueue holds pending order requests and retries them with bounded
// attempts and TTL. It is safe for concurrent use.
type RetryQueue struct {
	maxRetries int
	maxAge     time.Duration
	submit     SubmitFunc
	resolve    ResolveFunc
	logger     *slog.Logger

	mu      sync.Mutex
	entries []domain.QueuedTrade

	now func() time.Time
}

// Option configures a RetryQueue.
type Option func(*RetryQueue)

// WithMaxRetries overrides the retry bound.
func WithMaxRetries(n int) Option {
	return func(q *RetryQueue) { q.maxRetries = n }
}

// WithMaxAge overrides the queue TTL.
func WithMaxAge(d time.Duration) Option {
	return func(q *RetryQueue) { q.maxAge = d }
}

// WithResolver sets the lazy ticker resolver.
func WithResolver(r ResolveFunc) Option {
	return func(q *RetryQueue) { q.resolve = r }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(q *RetryQueue) { q.now = now }
}

// New creates a RetryQueue that executes trades through submit.
func New(submit SubmitFunc, logger *slog.Logger, opts ...Option) *RetryQueue {
	q := &RetryQueue{
		maxRetries: DefaultMaxRetries,
		maxAge:     DefaultMaxAge,
		submit:     submit,
		logger:     logger.With(slog.String("component", "retry_queue")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a trade request to the queue. QueuedAt is stamped if unset.
func (q *RetryQueue) Enqueue(trade domain.QueuedTrade) {
	if trade.QueuedAt.IsZero() {
		trade.QueuedAt = q.now()
	}

	q.mu.Lock()
	q.entries = append(q.entries, trade)
	depth := len(q.entries)
	q.mu.Unlock()

	q.logger.Info("queued trade for retry",
		slog.String("ticker", trade.Ticker),
		slog.String("selector", trade.Selector),
		slog.String("source", trade.Source),
		slog.Int("depth", depth),
	)
}

// Len returns the current queue depth.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Process walks the queue once and returns the number of successful
// executions. Expired and retry-exhausted entries are dropped without an
// execution attempt; every surviving entry is attempted exactly once this
// pass. Transient failures are re-queued, permanent failures dropped.
func (q *RetryQueue) Process(ctx context.Context) int {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	now := q.now()
	successes := 0
	var kept []domain.QueuedTrade

	for _, trade := range pending {
		if ctx.Err() != nil {
			kept = append(kept, trade)
			continue
		}

		if trade.Age(now) > q.maxAge {
			q.logger.Info("dropping expired queued trade",
				slog.String("ticker", trade.Ticker),
				slog.Duration("age", trade.Age(now)),
			)
			continue
		}
		if trade.RetryCount >= q.maxRetries {
			q.logger.Info("dropping retry-exhausted queued trade",
				slog.String("ticker", trade.Ticker),
				slog.Int("retries", trade.RetryCount),
			)
			continue
		}

		trade.RetryCount++

		if trade.Ticker == "" && q.resolve != nil {
			ticker, err := q.resolve(ctx, trade)
			if err != nil {
				// Unresolvable yet: the target window may not exist. Treat
				// like a transient failure and try again next pass.
				q.logger.Debug("ticker resolution failed, keeping trade",
					slog.String("selector", trade.Selector),
					slog.String("error", err.Error()),
				)
				kept = append(kept, trade)
				continue
			}
			trade.Ticker = ticker
		}

		err := q.submit(ctx, trade)
		switch {
		case err == nil:
			successes++
		case domain.IsTransientOrderErr(err):
			q.logger.Debug("transient failure, keeping trade",
				slog.String("ticker", trade.Ticker),
				slog.Int("retries", trade.RetryCount),
				slog.String("error", err.Error()),
			)
			kept = append(kept, trade)
		default:
			q.logger.Warn("permanent failure, dropping queued trade",
				slog.String("ticker", trade.Ticker),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(kept) > 0 {
		q.mu.Lock()
		// Entries enqueued during the pass go behind the survivors.
		q.entries = append(kept, q.entries...)
		q.mu.Unlock()
	}

	return successes
}
