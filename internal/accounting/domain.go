package accounting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeMemo      AccountType = "MEMO"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense, AccountTypeMemo:
		return true
	}
	return false
}

// EntryKind distinguishes journal, income and expense entries. Each kind has
// its own folio series.
type EntryKind string

const (
	EntryKindJournal EntryKind = "JOURNAL"
	EntryKindIncome  EntryKind = "INCOME"
	EntryKindExpense EntryKind = "EXPENSE"
)

// DocType maps the kind to its numbering series.
func (k EntryKind) DocType() (sequence.DocType, bool) {
	switch k {
	case EntryKindJournal:
		return sequence.DocEntryJournal, true
	case EntryKindIncome:
		return sequence.DocEntryIncome, true
	case EntryKindExpense:
		return sequence.DocEntryExpense, true
	}
	return "", false
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	CompanyID int64       `json:"company_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Level     int         `json:"level"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Entry is a posted, immutable ledger entry.
type Entry struct {
	ID          int64       `json:"id"`
	CompanyID   int64       `json:"company_id"`
	Kind        EntryKind   `json:"kind"`
	Folio       int64       `json:"folio"`
	Date        time.Time   `json:"date"`
	Description string      `json:"description"`
	ReversesID  *int64      `json:"reverses_id,omitempty"`
	CreatedBy   int64       `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Lines       []EntryLine `json:"lines"`
}

// Totals sums debit and credit across the entry lines.
func (e Entry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// EntryLine stores a debit or credit amount for an account.
type EntryLine struct {
	ID        int64           `json:"id"`
	EntryID   int64           `json:"entry_id"`
	LineNo    int             `json:"line_no"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Note      string          `json:"note,omitempty"`
}

// EntryLineInput describes one line of a posting request.
type EntryLineInput struct {
	AccountID int64           `json:"account_id" validate:"gt=0"`
	Debit     decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit    decimal.Decimal `json:"credit" validate:"gte=0"`
	Note      string          `json:"note" validate:"max=255"`
}

// PostEntryInput groups fields required to post a ledger entry.
type PostEntryInput struct {
	Kind        EntryKind        `json:"kind" validate:"required,oneof=JOURNAL INCOME EXPENSE"`
	Date        time.Time        `json:"date" validate:"required"`
	Description string           `json:"description" validate:"max=500"`
	Lines       []EntryLineInput `json:"lines" validate:"min=2,dive"`
}

// Validate checks the line rules and the balance tolerance. It never rounds.
func (in PostEntryInput) Validate() error {
	if _, ok := in.Kind.DocType(); !ok {
		return shared.Invalid("kind", "unknown entry kind")
	}
	if in.Date.IsZero() {
		return shared.Invalid("date", "required")
	}
	if len(in.Lines) < 2 {
		return shared.Invalid("lines", "entry requires at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		field := fmt.Sprintf("lines[%d]", idx)
		if line.AccountID <= 0 {
			return shared.Invalid(field+".account_id", "required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Invalid(field, "amounts must not be negative")
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.Invalid(field, "line cannot carry both debit and credit")
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return shared.Invalid(field, "line requires a debit or a credit")
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !shared.Balanced(debit, credit) {
		return &shared.UnbalancedEntryError{Debit: debit, Credit: credit, Delta: debit.Sub(credit)}
	}
	return nil
}

// ReverseEntryInput requests a balancing entry for a posted one.
type ReverseEntryInput struct {
	EntryID     int64     `json:"-"`
	Date        time.Time `json:"date"`
	Description string    `json:"description" validate:"max=500"`
}

// CreateAccountInput registers an account in the tenant's chart.
type CreateAccountInput struct {
	Code     string      `json:"code" validate:"required,max=32"`
	Name     string      `json:"name" validate:"required,max=160"`
	Type     AccountType `json:"type" validate:"required"`
	Level    int         `json:"level" validate:"gte=0,lte=9"`
	ParentID *int64      `json:"parent_id"`
}

// Validate ensures the account is well formed.
func (in CreateAccountInput) Validate() error {
	if in.Code == "" {
		return shared.Invalid("code", "required")
	}
	if in.Name == "" {
		return shared.Invalid("name", "required")
	}
	if !in.Type.Valid() {
		return shared.Invalid("type", "unknown account type")
	}
	if in.Level < 0 {
		return shared.Invalid("level", "must not be negative")
	}
	if in.ParentID != nil && *in.ParentID <= 0 {
		return shared.Invalid("parent_id", "must be positive")
	}
	return nil
}

// UpdateAccountInput changes mutable account fields; nil means unchanged.
type UpdateAccountInput struct {
	Name  *string      `json:"name" validate:"omitempty,min=1,max=160"`
	Type  *AccountType `json:"type"`
	Level *int         `json:"level" validate:"omitempty,gte=0,lte=9"`
}

// Validate checks the supplied fields.
func (in UpdateAccountInput) Validate() error {
	if in.Name != nil && *in.Name == "" {
		return shared.Invalid("name", "must not be empty")
	}
	if in.Type != nil && !in.Type.Valid() {
		return shared.Invalid("type", "unknown account type")
	}
	if in.Level != nil && *in.Level < 0 {
		return shared.Invalid("level", "must not be negative")
	}
	return nil
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	Kind  EntryKind
	From  time.Time
	To    time.Time
	Limit int
}

// TrialBalanceRow aggregates one account over a date range.
type TrialBalanceRow struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Balance returns debit minus credit.
func (r TrialBalanceRow) Balance() decimal.Decimal {
	return r.Debit.Sub(r.Credit)
}

// TrialBalance totals the ledger over a date range.
type TrialBalance struct {
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// BuildTrialBalance computes totals for rows.
func BuildTrialBalance(from, to time.Time, rows []TrialBalanceRow) TrialBalance {
	tb := TrialBalance{From: from, To: to, Rows: rows, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, row := range rows {
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	tb.Balanced = shared.Balanced(tb.TotalDebit, tb.TotalCredit)
	return tb
}

// Imbalance reports a persisted entry whose lines do not balance.
type Imbalance struct {
	EntryID int64           `json:"entry_id"`
	Kind    EntryKind       `json:"kind"`
	Folio   int64           `json:"folio"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}
