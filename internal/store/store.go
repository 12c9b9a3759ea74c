// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and the auth schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes the initial connection attempts.
type ConnectOptions struct {
	// Retries is how many times a failed ping is retried. Defaults to 3.
	Retries uint64
	// Backoff is the first retry delay; later delays double. Defaults to 500ms.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Connect opens a pool and pings it, retrying with exponential backoff so a
// database that is still starting does not fail the process.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database url is required")
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(opts.Retries, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			opts.Logger.Warn("database ping failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
