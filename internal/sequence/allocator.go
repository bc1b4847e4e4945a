// Package sequence allocates per-tenant document numbers (folios).
package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/shared"
)

// DocType names a numbered document family.
type DocType string

const (
	DocPurchaseOrder DocType = "PURCHASE_ORDER"
	DocEntryJournal  DocType = "ENTRY_JOURNAL"
	DocEntryIncome   DocType = "ENTRY_INCOME"
	DocEntryExpense  DocType = "ENTRY_EXPENSE"
	// DocEstimate numbers billing periods; ScopeID is the project.
	DocEstimate DocType = "ESTIMATE"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case DocPurchaseOrder, DocEntryJournal, DocEntryIncome, DocEntryExpense, DocEstimate:
		return true
	}
	return false
}

// Scope identifies one independent numbering series.
type Scope struct {
	CompanyID int64
	DocType   DocType
	ScopeID   int64
}

func (s Scope) String() string {
	return fmt.Sprintf("%d/%s/%d", s.CompanyID, s.DocType, s.ScopeID)
}

// Store reads and reserves folios inside the caller's transaction.
// Reserve must fail with shared.TransactionAbortedError when the folio was taken
// concurrently so the surrounding unit of work is retried.
type Store interface {
	MaxFolio(ctx context.Context, scope Scope) (int64, error)
	Reserve(ctx context.Context, scope Scope, folio int64) error
}

// Next returns max+1 for the scope and reserves it through store. The
// reservation commits or rolls back with the caller's transaction.
func Next(ctx context.Context, store Store, scope Scope) (int64, error) {
	if scope.CompanyID <= 0 {
		return 0, shared.Invalid("company_id", "tenant not resolved")
	}
	if !scope.DocType.Valid() {
		return 0, shared.Invalid("doc_type", "unknown document type")
	}
	if scope.ScopeID < 0 {
		return 0, shared.Invalid("scope_id", "must not be negative")
	}
	current, err := store.MaxFolio(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("sequence: max folio %s: %w", scope, err)
	}
	next := current + 1
	if err := store.Reserve(ctx, scope, next); err != nil {
		return 0, fmt.Errorf("sequence: reserve %s: %w", scope, err)
	}
	return next, nil
}

// PgStore implements Store on a pgx transaction.
type PgStore struct {
	tx pgx.Tx
}

// NewPgStore binds a Store to tx.
func NewPgStore(tx pgx.Tx) *PgStore {
	return &PgStore{tx: tx}
}

// MaxFolio returns the highest reserved folio or 0.
func (s *PgStore) MaxFolio(ctx context.Context, scope Scope) (int64, error) {
	var max int64
	err := s.tx.QueryRow(ctx, `SELECT COALESCE(MAX(folio), 0) FROM document_folios
WHERE company_id=$1 AND doc_type=$2 AND scope_id=$3`, scope.CompanyID, string(scope.DocType), scope.ScopeID).Scan(&max)
	return max, err
}

// Reserve inserts the folio into the registry. The primary key turns a
// concurrent duplicate into a unique violation, classified as an abort.
func (s *PgStore) Reserve(ctx context.Context, scope Scope, folio int64) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO document_folios (company_id, doc_type, scope_id, folio) VALUES ($1,$2,$3,$4)`,
		scope.CompanyID, string(scope.DocType), scope.ScopeID, folio)
	return db.Classify(err)
}
