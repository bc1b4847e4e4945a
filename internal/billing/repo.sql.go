package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// Repository persists projects, budgets and estimates.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Folios() sequence.Store
	InsertProject(ctx context.Context, companyID int64, in CreateProjectInput) (Project, error)
	GetProject(ctx context.Context, companyID, projectID int64) (Project, error)
	InsertBudget(ctx context.Context, budget Budget) (Budget, error)
	InsertBudgetLines(ctx context.Context, companyID int64, lines []BudgetLine) ([]BudgetLine, error)
	GetBudget(ctx context.Context, companyID, budgetID int64) (Budget, error)
	GetBudgetLine(ctx context.Context, companyID, lineID int64) (BudgetLine, error)
	InsertPeriod(ctx context.Context, period Period) (Period, error)
	GetPeriod(ctx context.Context, companyID, periodID int64) (Period, error)
	GetPeriodForUpdate(ctx context.Context, companyID, periodID int64) (Period, error)
	ListPeriods(ctx context.Context, companyID, projectID int64) ([]Period, error)
	PriorExecuted(ctx context.Context, companyID, projectID, budgetLineID, sequence int64) (decimal.Decimal, error)
	LaterBilled(ctx context.Context, companyID, projectID, budgetLineID, sequence int64) (bool, error)
	UpsertBilledLine(ctx context.Context, companyID int64, line BilledLine) (BilledLine, error)
	PeriodBilledTotal(ctx context.Context, companyID, periodID int64) (decimal.Decimal, error)
	SetPeriodTotal(ctx context.Context, companyID, periodID int64, total decimal.Decimal, status shared.PaymentStatus) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a serializable transaction, retrying aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("billing repository not initialised")
	}
	return r.runner.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Folios() sequence.Store {
	return sequence.NewPgStore(r.tx)
}

func (r *txRepository) InsertProject(ctx context.Context, companyID int64, in CreateProjectInput) (Project, error) {
	p := Project{CompanyID: companyID, Code: in.Code, Name: in.Name}
	err := r.tx.QueryRow(ctx, `INSERT INTO projects (company_id, code, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		companyID, in.Code, in.Name).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Project{}, db.Classify(err)
	}
	return p, nil
}

func (r *txRepository) GetProject(ctx context.Context, companyID, projectID int64) (Project, error) {
	var p Project
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, name, created_at FROM projects WHERE company_id=$1 AND id=$2`, companyID, projectID).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, shared.NotFound("project", projectID)
	}
	return p, err
}

func (r *txRepository) InsertBudget(ctx context.Context, budget Budget) (Budget, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO budgets (company_id, project_id, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		budget.CompanyID, budget.ProjectID, budget.Name).Scan(&budget.ID, &budget.CreatedAt)
	if err != nil {
		return Budget{}, db.Classify(err)
	}
	return budget, nil
}

func (r *txRepository) InsertBudgetLines(ctx context.Context, companyID int64, lines []BudgetLine) ([]BudgetLine, error) {
	out := make([]BudgetLine, 0, len(lines))
	for _, line := range lines {
		err := r.tx.QueryRow(ctx, `INSERT INTO budget_lines (budget_id, company_id, key, description, unit, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, line.BudgetID, companyID, line.Key, line.Description, line.Unit, line.Quantity, line.UnitPrice).
			Scan(&line.ID)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, line)
	}
	return out, nil
}

const budgetLineColumns = `id, budget_id, key, description, unit, quantity, unit_price`

func scanBudgetLine(row pgx.Row) (BudgetLine, error) {
	var l BudgetLine
	err := row.Scan(&l.ID, &l.BudgetID, &l.Key, &l.Description, &l.Unit, &l.Quantity, &l.UnitPrice)
	return l, err
}

func (r *txRepository) GetBudget(ctx context.Context, companyID, budgetID int64) (Budget, error) {
	var b Budget
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, project_id, name, created_at FROM budgets WHERE company_id=$1 AND id=$2`, companyID, budgetID).
		Scan(&b.ID, &b.CompanyID, &b.ProjectID, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, shared.NotFound("budget", budgetID)
		}
		return Budget{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+budgetLineColumns+` FROM budget_lines WHERE company_id=$1 AND budget_id=$2 ORDER BY key`, companyID, budgetID)
	if err != nil {
		return Budget{}, err
	}
	defer rows.Close()
	for rows.Next() {
		line, err := scanBudgetLine(rows)
		if err != nil {
			return Budget{}, err
		}
		b.Lines = append(b.Lines, line)
	}
	return b, rows.Err()
}

func (r *txRepository) GetBudgetLine(ctx context.Context, companyID, lineID int64) (BudgetLine, error) {
	l, err := scanBudgetLine(r.tx.QueryRow(ctx, `SELECT `+budgetLineColumns+` FROM budget_lines WHERE company_id=$1 AND id=$2`, companyID, lineID))
	if errors.Is(err, pgx.ErrNoRows) {
		return BudgetLine{}, shared.NotFound("budget_line", lineID)
	}
	return l, err
}

const periodColumns = `id, company_id, project_id, budget_id, sequence, period_start, period_end, total, paid_to_date, payment_status, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.ProjectID, &p.BudgetID, &p.Sequence, &p.Start, &p.End,
		&p.Total, &p.PaidToDate, &p.PaymentStatus, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *txRepository) InsertPeriod(ctx context.Context, period Period) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO billing_periods (company_id, project_id, budget_id, sequence, period_start, period_end, payment_status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+periodColumns,
		period.CompanyID, period.ProjectID, period.BudgetID, period.Sequence, period.Start, period.End, string(period.PaymentStatus)))
	if err != nil {
		return Period{}, db.Classify(err)
	}
	return p, nil
}

func (r *txRepository) GetPeriod(ctx context.Context, companyID, periodID int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM billing_periods WHERE company_id=$1 AND id=$2`, companyID, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.NotFound("billing_period", periodID)
		}
		return Period{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, period_id, budget_line_id, quantity_executed, quantity_accumulated, amount, updated_at
FROM billed_lines WHERE company_id=$1 AND period_id=$2 ORDER BY budget_line_id`, companyID, periodID)
	if err != nil {
		return Period{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l BilledLine
		if err := rows.Scan(&l.ID, &l.PeriodID, &l.BudgetLineID, &l.QuantityExecuted, &l.QuantityAccumulated, &l.Amount, &l.UpdatedAt); err != nil {
			return Period{}, err
		}
		p.Lines = append(p.Lines, l)
	}
	return p, rows.Err()
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, companyID, periodID int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM billing_periods WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, periodID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.NotFound("billing_period", periodID)
	}
	return p, err
}

func (r *txRepository) ListPeriods(ctx context.Context, companyID, projectID int64) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM billing_periods WHERE company_id=$1 AND project_id=$2 ORDER BY sequence`, companyID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Period{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) PriorExecuted(ctx context.Context, companyID, projectID, budgetLineID, seq int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(b.quantity_executed), 0)
FROM billed_lines b
JOIN billing_periods p ON p.id = b.period_id
WHERE b.company_id=$1 AND p.project_id=$2 AND b.budget_line_id=$3 AND p.sequence < $4`, companyID, projectID, budgetLineID, seq).Scan(&total)
	return total, err
}

func (r *txRepository) LaterBilled(ctx context.Context, companyID, projectID, budgetLineID, seq int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
    SELECT 1 FROM billed_lines b
    JOIN billing_periods p ON p.id = b.period_id
    WHERE b.company_id=$1 AND p.project_id=$2 AND b.budget_line_id=$3 AND p.sequence > $4)`, companyID, projectID, budgetLineID, seq).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpsertBilledLine(ctx context.Context, companyID int64, line BilledLine) (BilledLine, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO billed_lines (period_id, company_id, budget_line_id, quantity_executed, quantity_accumulated, amount)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT ON CONSTRAINT billed_lines_period_line_key DO UPDATE
SET quantity_executed = EXCLUDED.quantity_executed,
    quantity_accumulated = EXCLUDED.quantity_accumulated,
    amount = EXCLUDED.amount,
    updated_at = NOW()
RETURNING id, updated_at`, line.PeriodID, companyID, line.BudgetLineID, line.QuantityExecuted, line.QuantityAccumulated, line.Amount).
		Scan(&line.ID, &line.UpdatedAt)
	if err != nil {
		return BilledLine{}, db.Classify(err)
	}
	return line, nil
}

func (r *txRepository) PeriodBilledTotal(ctx context.Context, companyID, periodID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM billed_lines WHERE company_id=$1 AND period_id=$2`, companyID, periodID).Scan(&total)
	return total, err
}

func (r *txRepository) SetPeriodTotal(ctx context.Context, companyID, periodID int64, total decimal.Decimal, status shared.PaymentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE billing_periods SET total=$3, payment_status=$4, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, periodID, total, string(status))
	return err
}
