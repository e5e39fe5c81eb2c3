package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
)

// NewPool opens the document store pool and verifies it with a ping. Callers
// that must tolerate a slow database wrap it in lifecycle.Retry.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Connect opens the pool, retrying a bounded number of times while the
// database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, attempts int, delay time.Duration, logger *slog.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := lifecycle.Retry(ctx, logger, "database", attempts, delay, func(ctx context.Context) error {
		p, err := NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
