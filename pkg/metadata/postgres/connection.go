// Package postgres is the Postgres-backed metadata.Store, grounded on the
// teacher's pkg/metadata/store/postgres package: a pgxpool.Pool wrapped by
// a thin struct implementing the facade, hand-written SQL (no ORM, matching
// the teacher's own choice there) against the three tables of spec.md §3.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

func (c Config) applyDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	return c
}

// Store is the Postgres implementation of metadata.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool and returns a Store. Callers should run the
// schema migrations (RunMigrations) before first use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("metadata/postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("metadata/postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata/postgres: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}
