package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds discrete connection settings, used by the test containers
// where host and port are only known at runtime.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int32
	MinConns int32
}

// NewPool builds a DSN from the config and opens a pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	return newPool(ctx, dsn, func(pc *pgxpool.Config) {
		pc.MaxConns = cfg.MaxConns
		pc.MinConns = cfg.MinConns
	})
}

// NewPoolFromURL opens a pool from a full connection URL, as configured for
// the daemon via DOCPIPE_DATABASE_URL. Pool sizing stays at pgx defaults or
// whatever the URL's query parameters specify.
func NewPoolFromURL(ctx context.Context, url string) (*pgxpool.Pool, error) {
	return newPool(ctx, url, nil)
}

func newPool(ctx context.Context, dsn string, tune func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if tune != nil {
		tune(poolConfig)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
