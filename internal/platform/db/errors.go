package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cimiento/cimiento/internal/shared"
)

// PostgreSQL error codes handled by Classify.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// folioRegistryTable holds reserved document numbers; a duplicate there means
// a concurrent allocator won the race and the whole transaction must retry.
const folioRegistryTable = "document_folios"

// Classify converts driver errors into the shared error taxonomy. Errors that
// are not PostgreSQL errors, or are already classified, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var aborted *shared.TransactionAbortedError
	if errors.As(err, &aborted) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return &shared.TransactionAbortedError{Cause: err}
	case codeUniqueViolation:
		if pgErr.TableName == folioRegistryTable {
			return &shared.TransactionAbortedError{Cause: err}
		}
		return &shared.ConflictError{Entity: pgErr.TableName, Constraint: pgErr.ConstraintName}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
