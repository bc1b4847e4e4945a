package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimiento/cimiento/internal/shared"
)

// DefaultMaxAttempts bounds whole-transaction retries.
const DefaultMaxAttempts = 3

const defaultBackoff = 25 * time.Millisecond

// WithTx executes a function within a single serializable transaction. Errors
// returned by fn or by commit are classified so isolation conflicts surface as
// shared.TransactionAbortedError.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", Classify(err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", Classify(err))
	}

	return nil
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Only shared.ErrTransactionAborted is retried.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, shared.ErrTransactionAborted) {
			return err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Runner starts serializable transactions and retries aborted ones.
type Runner struct {
	pool        *pgxpool.Pool
	maxAttempts int
	backoff     time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(pool *pgxpool.Pool, maxAttempts int) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Runner{pool: pool, maxAttempts: maxAttempts, backoff: defaultBackoff}
}

// Pool exposes the underlying pool for non-transactional reads.
func (r *Runner) Pool() *pgxpool.Pool {
	return r.pool
}

// InTx runs fn in a fresh transaction per attempt.
func (r *Runner) InTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("platform/db: runner not initialised")
	}
	return Retry(ctx, r.maxAttempts, r.backoff, func(ctx context.Context) error {
		return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			return fn(ctx, tx)
		})
	})
}
