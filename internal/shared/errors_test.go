package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{Invalid("qty", "must be positive"), ErrValidation},
		{&UnbalancedEntryError{}, ErrUnbalancedEntry},
		{&InsufficientStockError{}, ErrInsufficientStock},
		{&InsufficientFundsError{}, ErrInsufficientFunds},
		{&InvalidStateTransitionError{}, ErrInvalidStateTransition},
		{&OverBudgetError{}, ErrOverBudget},
		{NotFound("product", 1), ErrNotFound},
		{&ConflictError{Entity: "account"}, ErrConflict},
		{&TransactionAbortedError{Cause: errors.New("40001")}, ErrTransactionAborted},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		require.ErrorIs(t, wrapped, tc.sentinel, tc.err.Error())
	}
}

func TestOverBudgetErrorCarriesDetail(t *testing.T) {
	err := fmt.Errorf("billing: %w", &OverBudgetError{BudgetLineID: 3, Requested: decimal.NewFromInt(110), Limit: decimal.NewFromInt(100)})
	var over *OverBudgetError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Requested.Equal(decimal.NewFromInt(110)))
	require.True(t, over.Limit.Equal(decimal.NewFromInt(100)))
}

func TestSettlementStatus(t *testing.T) {
	total := decimal.NewFromInt(1000)
	require.Equal(t, PaymentUnpaid, SettlementStatus(total, decimal.Zero))
	require.Equal(t, PaymentPartial, SettlementStatus(total, decimal.NewFromInt(400)))
	require.Equal(t, PaymentPaid, SettlementStatus(total, decimal.RequireFromString("999.995")))
	require.Equal(t, PaymentPaid, SettlementStatus(total, total))
	require.Equal(t, PaymentOverpaid, SettlementStatus(total, decimal.NewFromInt(1001)))
}

func TestTenantValidate(t *testing.T) {
	require.ErrorIs(t, Tenant{}.Validate(), ErrValidation)
	require.NoError(t, Tenant{CompanyID: 7}.Validate())
}

func TestFitsQuantityScale(t *testing.T) {
	require.True(t, FitsQuantityScale(decimal.RequireFromString("12.3456")))
	require.True(t, FitsQuantityScale(decimal.RequireFromString("1.50000")))
	require.False(t, FitsQuantityScale(decimal.RequireFromString("0.00004")))
}

func TestBalancedTreatsOneCentAsUnbalanced(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	require.True(t, Balanced(hundred, hundred))
	require.True(t, Balanced(hundred, decimal.RequireFromString("99.995")))
	require.False(t, Balanced(hundred, decimal.RequireFromString("99.99")))
}
