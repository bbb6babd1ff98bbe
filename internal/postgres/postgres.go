// Package postgres provides PostgreSQL connection pool construction.
//
// All persistent state (sessions, messages, users, quota counters, and the
// knowledge base) lives in a single PostgreSQL database; every store package
// receives the shared *pgxpool.Pool created here.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds the initial connection attempt so a missing
// database fails fast at startup instead of hanging.
const connectTimeout = 10 * time.Second

// Connect creates a connection pool and verifies connectivity with a ping.
// dsn is a pgx key=value DSN or postgres:// URL.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
