package treasury

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/shared"
)

// Repository persists treasury data in PostgreSQL.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertBankAccount(ctx context.Context, companyID int64, in CreateBankAccountInput) (BankAccount, error)
	GetBankAccount(ctx context.Context, companyID, accountID int64) (BankAccount, error)
	GetBankAccountForUpdate(ctx context.Context, companyID, accountID int64) (BankAccount, error)
	BalanceFromLog(ctx context.Context, companyID, accountID int64) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	SetBalance(ctx context.Context, companyID, accountID int64, balance decimal.Decimal) error
	GetReceivableForUpdate(ctx context.Context, companyID int64, doc Document, id int64) (Receivable, error)
	SetPaid(ctx context.Context, companyID int64, doc Document, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
	ListTransactions(ctx context.Context, companyID, accountID int64, limit int) ([]Transaction, error)
	BalanceDrifts(ctx context.Context, companyID int64) ([]BalanceDrift, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a serializable transaction, retrying aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("treasury repository not initialised")
	}
	return r.runner.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const bankAccountColumns = `id, company_id, alias, opening_balance, balance, created_at, updated_at`

func scanBankAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.CompanyID, &a.Alias, &a.OpeningBalance, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) InsertBankAccount(ctx context.Context, companyID int64, in CreateBankAccountInput) (BankAccount, error) {
	a, err := scanBankAccount(r.tx.QueryRow(ctx, `INSERT INTO bank_accounts (company_id, alias, opening_balance, balance)
VALUES ($1,$2,$3,$3) RETURNING `+bankAccountColumns, companyID, in.Alias, in.OpeningBalance))
	if err != nil {
		return BankAccount{}, db.Classify(err)
	}
	return a, nil
}

func (r *txRepository) GetBankAccount(ctx context.Context, companyID, accountID int64) (BankAccount, error) {
	a, err := scanBankAccount(r.tx.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE company_id=$1 AND id=$2`, companyID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return BankAccount{}, shared.NotFound("bank_account", accountID)
	}
	return a, err
}

func (r *txRepository) GetBankAccountForUpdate(ctx context.Context, companyID, accountID int64) (BankAccount, error) {
	a, err := scanBankAccount(r.tx.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return BankAccount{}, shared.NotFound("bank_account", accountID)
	}
	return a, err
}

const signedAmount = `CASE WHEN t.kind = 'OUTFLOW' THEN -t.amount ELSE t.amount END`

func (r *txRepository) BalanceFromLog(ctx context.Context, companyID, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT a.opening_balance + COALESCE((SELECT SUM(`+signedAmount+`)
    FROM treasury_transactions t WHERE t.company_id = a.company_id AND t.bank_account_id = a.id), 0)
FROM bank_accounts a WHERE a.company_id=$1 AND a.id=$2`, companyID, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, shared.NotFound("bank_account", accountID)
	}
	return balance, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO treasury_transactions
(company_id, bank_account_id, kind, amount, concept, purchase_order_id, billing_period_id, ref_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		t.CompanyID, t.BankAccountID, string(t.Kind), t.Amount, t.Concept, t.PurchaseOrderID, t.BillingPeriodID, t.RefID, nullInt(t.CreatedBy)).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transaction{}, db.Classify(err)
	}
	return t, nil
}

func (r *txRepository) SetBalance(ctx context.Context, companyID, accountID int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_accounts SET balance=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, accountID, balance)
	return err
}

func receivableTable(doc Document) (string, error) {
	switch doc {
	case DocumentPurchaseOrder:
		return "purchase_orders", nil
	case DocumentBillingPeriod:
		return "billing_periods", nil
	}
	return "", fmt.Errorf("treasury: unknown document %q", doc)
}

func (r *txRepository) GetReceivableForUpdate(ctx context.Context, companyID int64, doc Document, id int64) (Receivable, error) {
	var query string
	switch doc {
	case DocumentPurchaseOrder:
		query = `SELECT id, total, paid_to_date, status FROM purchase_orders WHERE company_id=$1 AND id=$2 FOR UPDATE`
	case DocumentBillingPeriod:
		query = `SELECT id, total, paid_to_date, '' FROM billing_periods WHERE company_id=$1 AND id=$2 FOR UPDATE`
	default:
		return Receivable{}, fmt.Errorf("treasury: unknown document %q", doc)
	}
	var rec Receivable
	err := r.tx.QueryRow(ctx, query, companyID, id).Scan(&rec.ID, &rec.Total, &rec.PaidToDate, &rec.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, shared.NotFound(string(doc), id)
	}
	return rec, err
}

func (r *txRepository) SetPaid(ctx context.Context, companyID int64, doc Document, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	table, err := receivableTable(doc)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE `+table+` SET paid_to_date=$3, payment_status=$4, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, id, paid, string(status))
	return err
}

func (r *txRepository) ListTransactions(ctx context.Context, companyID, accountID int64, limit int) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT t.id, t.company_id, t.bank_account_id, t.kind, t.amount, t.concept, t.purchase_order_id,
       t.billing_period_id, COALESCE(t.ref_id::text, ''), COALESCE(t.created_by, 0), t.created_at,
       a.opening_balance + SUM(`+signedAmount+`) OVER (ORDER BY t.id) AS balance_after
FROM treasury_transactions t
JOIN bank_accounts a ON a.id = t.bank_account_id
WHERE t.company_id=$1 AND t.bank_account_id=$2
ORDER BY t.id DESC
LIMIT $3`, companyID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.BankAccountID, &t.Kind, &t.Amount, &t.Concept, &t.PurchaseOrderID,
			&t.BillingPeriodID, &t.RefID, &t.CreatedBy, &t.CreatedAt, &t.BalanceAfter); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) BalanceDrifts(ctx context.Context, companyID int64) ([]BalanceDrift, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.alias, a.balance, a.opening_balance + COALESCE(SUM(`+signedAmount+`), 0) AS computed
FROM bank_accounts a
LEFT JOIN treasury_transactions t ON t.bank_account_id = a.id AND t.company_id = a.company_id
WHERE a.company_id=$1
GROUP BY a.id, a.alias, a.balance, a.opening_balance
HAVING ABS(a.balance - a.opening_balance - COALESCE(SUM(`+signedAmount+`), 0)) >= $2
ORDER BY a.id`, companyID, shared.MoneyEpsilon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []BalanceDrift{}
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.BankAccountID, &d.Alias, &d.Cached, &d.Computed); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
