package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/shared"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return &shared.TransactionAbortedError{Cause: errors.New("40001")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetrySurfacesAbortAfterBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return &shared.TransactionAbortedError{Cause: errors.New("40001")}
	})
	require.ErrorIs(t, err, shared.ErrTransactionAborted)
	require.Equal(t, 3, calls)
}

func TestRetryDoesNotRepeatDomainErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return shared.Invalid("quantity", "must be positive")
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Second, func(context.Context) error {
		calls++
		cancel()
		return &shared.TransactionAbortedError{}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	serialization := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"})
	require.ErrorIs(t, Classify(serialization), shared.ErrTransactionAborted)

	deadlock := &pgconn.PgError{Code: "40P01"}
	require.ErrorIs(t, Classify(deadlock), shared.ErrTransactionAborted)

	folio := &pgconn.PgError{Code: "23505", TableName: "document_folios", ConstraintName: "document_folios_pkey"}
	require.ErrorIs(t, Classify(folio), shared.ErrTransactionAborted)

	dup := &pgconn.PgError{Code: "23505", TableName: "accounts", ConstraintName: "accounts_company_code_key"}
	var conflict *shared.ConflictError
	require.ErrorAs(t, Classify(dup), &conflict)
	require.Equal(t, "accounts", conflict.Entity)
	require.True(t, IsUniqueViolation(dup))

	plain := errors.New("boom")
	require.Equal(t, plain, Classify(plain))
	require.NoError(t, Classify(nil))
}

func TestMigrationsEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, "0001_core", migrations[0].Version)
	require.Contains(t, migrations[0].SQL, "document_folios")
}
