package treasury

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// Kind is the direction of a bank transaction.
type Kind string

const (
	KindInflow  Kind = "INFLOW"
	KindOutflow Kind = "OUTFLOW"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindInflow || k == KindOutflow
}

// Signed returns amount with the sign the kind applies to the balance.
func (k Kind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == KindOutflow {
		return amount.Neg()
	}
	return amount
}

// BankAccount holds a cached balance derived from its transaction log.
type BankAccount struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Alias          string          `json:"alias"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateBankAccountInput opens a bank account.
type CreateBankAccountInput struct {
	Alias          string          `json:"alias" validate:"required,max=120"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"gte=0"`
}

// Validate checks the account fields.
func (in CreateBankAccountInput) Validate() error {
	if in.Alias == "" {
		return shared.Invalid("alias", "required")
	}
	if in.OpeningBalance.IsNegative() {
		return shared.Invalid("opening_balance", "must not be negative")
	}
	return nil
}

// Transaction is an append-only bank movement.
type Transaction struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	BankAccountID   int64           `json:"bank_account_id"`
	Kind            Kind            `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	Concept         string          `json:"concept,omitempty"`
	PurchaseOrderID *int64          `json:"purchase_order_id,omitempty"`
	BillingPeriodID *int64          `json:"billing_period_id,omitempty"`
	RefID           string          `json:"ref_id"`
	CreatedBy       int64           `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Settlement      *Settlement     `json:"settlement,omitempty"`
}

// TransactionInput requests a bank movement, optionally settling one document.
type TransactionInput struct {
	BankAccountID   int64           `json:"bank_account_id" validate:"gt=0"`
	Kind            Kind            `json:"kind" validate:"required,oneof=INFLOW OUTFLOW"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	Concept         string          `json:"concept" validate:"max=500"`
	PurchaseOrderID *int64          `json:"purchase_order_id" validate:"omitempty,gt=0"`
	BillingPeriodID *int64          `json:"billing_period_id" validate:"omitempty,gt=0"`
}

// Validate checks amounts and link rules.
func (in TransactionInput) Validate() error {
	if in.BankAccountID <= 0 {
		return shared.Invalid("bank_account_id", "required")
	}
	if !in.Kind.Valid() {
		return shared.Invalid("kind", "must be INFLOW or OUTFLOW")
	}
	if !in.Amount.IsPositive() {
		return shared.Invalid("amount", "must be positive")
	}
	if !in.Amount.Equal(shared.RoundMoney(in.Amount)) {
		return shared.Invalid("amount", "at most two decimals")
	}
	if in.PurchaseOrderID != nil && in.BillingPeriodID != nil {
		return shared.Invalid("", "link either a purchase order or a billing period")
	}
	if in.PurchaseOrderID != nil && in.Kind != KindOutflow {
		return shared.Invalid("purchase_order_id", "only outflows pay purchase orders")
	}
	if in.BillingPeriodID != nil && in.Kind != KindInflow {
		return shared.Invalid("billing_period_id", "only inflows collect billing periods")
	}
	return nil
}

// Document names the settled document family.
type Document string

const (
	DocumentPurchaseOrder Document = "purchase_order"
	DocumentBillingPeriod Document = "billing_period"
)

// Receivable is the payment state of a linked document.
type Receivable struct {
	ID         int64
	Total      decimal.Decimal
	PaidToDate decimal.Decimal
	// State is the document lifecycle status, when it has one.
	State string
}

// Settlement reports the linked document after a payment.
type Settlement struct {
	Document   Document             `json:"document"`
	ID         int64                `json:"id"`
	Total      decimal.Decimal      `json:"total"`
	PaidToDate decimal.Decimal      `json:"paid_to_date"`
	Status     shared.PaymentStatus `json:"payment_status"`
}

// BalanceDrift reports an account whose cached balance differs from its log.
type BalanceDrift struct {
	BankAccountID int64           `json:"bank_account_id"`
	Alias         string          `json:"alias"`
	Cached        decimal.Decimal `json:"cached"`
	Computed      decimal.Decimal `json:"computed"`
}
