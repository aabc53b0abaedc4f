// Package postgres implements the optional closed-trade journal on
// PostgreSQL via pgx. The journal is analytics-only; the JSON ledger remains
// the durable source of truth for positions.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradingagent/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id          BIGSERIAL PRIMARY KEY,
	ticker      TEXT        NOT NULL,
	strategy    TEXT        NOT NULL,
	universe    TEXT        NOT NULL,
	side        TEXT        NOT NULL,
	contracts   INTEGER     NOT NULL,
	entry_price INTEGER     NOT NULL,
	exit_price  INTEGER     NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS closed_trades_strategy_idx ON closed_trades (strategy, closed_at);
`

// Journal records closed trades for offline analysis.
type Journal struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and ensures the journal schema exists.
func New(ctx context.Context, dsn string) (*Journal, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ensure schema: %w", err)
	}
	return &Journal{pool: pool}, nil
}

// Close releases the connection pool.
func (j *Journal) Close() {
	j.pool.Close()
}

// Record appends closed trades to the journal using a pgx batch.
func (j *Journal) Record(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
		INSERT INTO closed_trades (
			ticker, strategy, universe, side, contracts,
			entry_price, exit_price, pnl, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.Ticker, t.Strategy, string(t.Universe), string(t.Side), t.Contracts,
			t.EntryPrice, t.ExitPrice, t.PnL, t.OpenedAt, t.ClosedAt,
		)
	}

	br := j.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("journal: insert item %d: %w", i, err)
		}
	}
	return nil
}

// Performance aggregates journaled results for one strategy, or for all
// strategies when name is empty.
func (j *Journal) Performance(ctx context.Context, name string) (domain.Performance, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE pnl > 0),
		       COALESCE(SUM(pnl), 0)
		FROM closed_trades
		WHERE ($1 = '' OR strategy = $1)`

	var perf domain.Performance
	err := j.pool.QueryRow(ctx, query, name).Scan(&perf.Trades, &perf.WinningTrades, &perf.TotalPnL)
	if err != nil {
		return domain.Performance{}, fmt.Errorf("journal: aggregate: %w", err)
	}
	if perf.Trades > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(perf.Trades)
		perf.AvgPnLPerTrade = perf.TotalPnL / float64(perf.Trades)
	}
	return perf, nil
}
