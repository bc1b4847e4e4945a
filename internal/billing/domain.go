package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// Project is a construction job that budgets and estimates hang off.
type Project struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProjectInput registers a project.
type CreateProjectInput struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

// Validate checks project fields.
func (in CreateProjectInput) Validate() error {
	if in.Code == "" {
		return shared.Invalid("code", "required")
	}
	if in.Name == "" {
		return shared.Invalid("name", "required")
	}
	return nil
}

// Budget is the priced catalogue of work for a project. Lines are immutable.
type Budget struct {
	ID        int64        `json:"id"`
	CompanyID int64        `json:"company_id"`
	ProjectID int64        `json:"project_id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	Lines     []BudgetLine `json:"lines"`
}

// BudgetLine is one concept with its budgeted quantity and unit price.
type BudgetLine struct {
	ID          int64           `json:"id"`
	BudgetID    int64           `json:"budget_id"`
	Key         string          `json:"key"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// BudgetLineInput describes one budget concept.
type BudgetLineInput struct {
	Key         string          `json:"key" validate:"required,max=32"`
	Description string          `json:"description" validate:"max=500"`
	Unit        string          `json:"unit" validate:"max=16"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// CreateBudgetInput creates a budget with its lines.
type CreateBudgetInput struct {
	ProjectID int64             `json:"project_id" validate:"gt=0"`
	Name      string            `json:"name" validate:"required,max=200"`
	Lines     []BudgetLineInput `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks the budget and its line keys.
func (in CreateBudgetInput) Validate() error {
	if in.ProjectID <= 0 {
		return shared.Invalid("project_id", "required")
	}
	if in.Name == "" {
		return shared.Invalid("name", "required")
	}
	if len(in.Lines) == 0 {
		return shared.Invalid("lines", "at least one line required")
	}
	seen := make(map[string]struct{}, len(in.Lines))
	for _, line := range in.Lines {
		if line.Key == "" {
			return shared.Invalid("lines.key", "required")
		}
		if _, dup := seen[line.Key]; dup {
			return shared.Invalid("lines.key", "duplicate key "+line.Key)
		}
		seen[line.Key] = struct{}{}
		if line.Quantity.IsNegative() {
			return shared.Invalid("lines.quantity", "must not be negative")
		}
		if !shared.FitsQuantityScale(line.Quantity) {
			return shared.Invalid("lines.quantity", "at most four decimals")
		}
		if line.UnitPrice.IsNegative() {
			return shared.Invalid("lines.unit_price", "must not be negative")
		}
	}
	return nil
}

// Period is one progressive estimate of a project.
type Period struct {
	ID            int64                `json:"id"`
	CompanyID     int64                `json:"company_id"`
	ProjectID     int64                `json:"project_id"`
	BudgetID      int64                `json:"budget_id"`
	Sequence      int64                `json:"sequence"`
	Start         time.Time            `json:"period_start"`
	End           time.Time            `json:"period_end"`
	Total         decimal.Decimal      `json:"total"`
	PaidToDate    decimal.Decimal      `json:"paid_to_date"`
	PaymentStatus shared.PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Lines         []BilledLine         `json:"lines,omitempty"`
}

// BilledLine is the execution of one budget line within a period.
type BilledLine struct {
	ID                  int64           `json:"id"`
	PeriodID            int64           `json:"period_id"`
	BudgetLineID        int64           `json:"budget_line_id"`
	QuantityExecuted    decimal.Decimal `json:"quantity_executed"`
	QuantityAccumulated decimal.Decimal `json:"quantity_accumulated"`
	Amount              decimal.Decimal `json:"amount"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CreatePeriodInput opens the next estimate of a project.
type CreatePeriodInput struct {
	ProjectID int64     `json:"project_id" validate:"gt=0"`
	BudgetID  int64     `json:"budget_id" validate:"gt=0"`
	Start     time.Time `json:"period_start" validate:"required"`
	End       time.Time `json:"period_end" validate:"required"`
}

// Validate checks the period bounds.
func (in CreatePeriodInput) Validate() error {
	if in.ProjectID <= 0 {
		return shared.Invalid("project_id", "required")
	}
	if in.BudgetID <= 0 {
		return shared.Invalid("budget_id", "required")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return shared.Invalid("period_start", "period bounds required")
	}
	if in.End.Before(in.Start) {
		return shared.Invalid("period_end", "must not precede period_start")
	}
	return nil
}

// RecordExecutionInput reports executed quantity of a budget line in a period.
type RecordExecutionInput struct {
	PeriodID         int64           `json:"-"`
	BudgetLineID     int64           `json:"budget_line_id" validate:"gt=0"`
	QuantityExecuted decimal.Decimal `json:"quantity_executed" validate:"gte=0"`
}

// Validate checks the execution.
func (in RecordExecutionInput) Validate() error {
	if in.PeriodID <= 0 {
		return shared.Invalid("period_id", "required")
	}
	if in.BudgetLineID <= 0 {
		return shared.Invalid("budget_line_id", "required")
	}
	if in.QuantityExecuted.IsNegative() {
		return shared.Invalid("quantity_executed", "must not be negative")
	}
	if !shared.FitsQuantityScale(in.QuantityExecuted) {
		return shared.Invalid("quantity_executed", "at most four decimals")
	}
	return nil
}
