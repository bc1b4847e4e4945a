package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation indicates malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrUnbalancedEntry indicates debit and credit totals differ.
	ErrUnbalancedEntry = errors.New("unbalanced entry")
	// ErrInsufficientStock indicates an outbound movement larger than stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds indicates an outflow larger than the bank balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidStateTransition indicates an action not allowed in the current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrOverBudget indicates accumulated execution above the budgeted quantity.
	ErrOverBudget = errors.New("over budget")
	// ErrNotFound indicates resource not found or not owned by the tenant.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = errors.New("conflict")
	// ErrTransactionAborted indicates an isolation conflict; the caller may retry.
	ErrTransactionAborted = errors.New("transaction aborted")
	// ErrInvalidCredentials indicates an unknown or revoked API token.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UnbalancedEntryError carries both totals and their difference.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
	Delta  decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced entry: debit %s, credit %s, delta %s", e.Debit, e.Credit, e.Delta)
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// InsufficientStockError reports available versus requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %s, requested %s", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientFundsError reports balance versus requested amount.
type InsufficientFundsError struct {
	BankAccountID int64
	Balance       decimal.Decimal
	Requested     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in bank account %d: balance %s, requested %s", e.BankAccountID, e.Balance, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InvalidStateTransitionError reports a refused lifecycle move.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for %s: %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// OverBudgetError reports the accumulated quantity that would exceed the limit.
type OverBudgetError struct {
	BudgetLineID int64
	Requested    decimal.Decimal
	Limit        decimal.Decimal
}

func (e *OverBudgetError) Error() string {
	return fmt.Sprintf("budget line %d over budget: requested %s, limit %s", e.BudgetLineID, e.Requested, e.Limit)
}

func (e *OverBudgetError) Unwrap() error { return ErrOverBudget }

// NotFoundError reports a missing entity within the tenant scope.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a unique constraint violation.
type ConflictError struct {
	Entity     string
	Constraint string
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s already exists", e.Entity)
	}
	return fmt.Sprintf("%s already exists (%s)", e.Entity, e.Constraint)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// TransactionAbortedError wraps an isolation conflict that requires a retry.
type TransactionAbortedError struct {
	Cause error
}

func (e *TransactionAbortedError) Error() string {
	if e.Cause == nil {
		return "transaction aborted"
	}
	return fmt.Sprintf("transaction aborted: %v", e.Cause)
}

// Is lets errors.Is match both the sentinel and the cause chain.
func (e *TransactionAbortedError) Is(target error) bool {
	return target == ErrTransactionAborted
}

func (e *TransactionAbortedError) Unwrap() error { return e.Cause }
