package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the pool opened by New.
type Options struct {
	DSN string
	// StatementTimeout is set per session when positive.
	StatementTimeout time.Duration
	// MaxConns overrides pool_max_conns from the DSN when positive.
	MaxConns int32
	// AppName shows up in pg_stat_activity.
	AppName string
	// PingAttempts is how many times New pings before giving up. Zero means once.
	PingAttempts int
}

const pingInterval = time.Second

func poolConfig(opts Options) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	params := config.ConnConfig.RuntimeParams
	if opts.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}
	if opts.AppName != "" {
		params["application_name"] = opts.AppName
	}
	// entry, movement and period dates are UTC calendar days
	params["timezone"] = "UTC"
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.HealthCheckPeriod = 30 * time.Second
	return config, nil
}

// New opens a pool and waits until Postgres answers a ping.
func New(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	config, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	attempts := max(opts.PingAttempts, 1)
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(pingInterval):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("platform/db: ping after %d attempt(s): %w", attempts, err)
}
