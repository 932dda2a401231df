package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/inplay-odds/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS odds_changes (
		changed_at   TIMESTAMPTZ NOT NULL,
		market_id    TEXT        NOT NULL,
		field_key    TEXT        NOT NULL,
		runner_key   TEXT        NOT NULL,
		runner_id    TEXT        NOT NULL,
		side         TEXT        NOT NULL,
		ladder_index INTEGER     NOT NULL,
		direction    TEXT        NOT NULL,
		old_odds     NUMERIC     NOT NULL,
		new_odds     NUMERIC     NOT NULL
	)`,
	`SELECT create_hypertable('odds_changes', 'changed_at', if_not_exists => TRUE)`,
	`CREATE INDEX IF NOT EXISTS odds_changes_market_idx ON odds_changes (market_id, changed_at DESC)`,
}

// EnsureSchema creates the odds_changes hypertable if it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
