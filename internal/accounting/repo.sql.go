package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// Repository persists accounting entities.
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
	GetAccount(ctx context.Context, companyID, accountID int64) (Account, error)
	GetAccountForUpdate(ctx context.Context, companyID, accountID int64) (Account, error)
	GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error)
	InsertAccount(ctx context.Context, companyID int64, in CreateAccountInput) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	AccountHasLines(ctx context.Context, companyID, accountID int64) (bool, error)
	ListAccounts(ctx context.Context, companyID int64) ([]Account, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertEntryLines(ctx context.Context, companyID, entryID int64, lines []EntryLine) error
	GetEntry(ctx context.Context, companyID, entryID int64) (Entry, error)
	HasReversal(ctx context.Context, companyID, entryID int64) (bool, error)
	ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error)
	AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]TrialBalanceRow, error)
	UnbalancedEntries(ctx context.Context, companyID int64) ([]Imbalance, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a serializable transaction, retrying aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("accounting repository not initialised")
	}
	return r.runner.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Folios() sequence.Store {
	return sequence.NewPgStore(r.tx)
}

const accountColumns = `id, company_id, code, name, type, level, parent_id, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Level, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) GetAccount(ctx context.Context, companyID, accountID int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", accountID)
	}
	return a, err
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, companyID, accountID int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", accountID)
	}
	return a, err
}

func (r *txRepository) GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, companyID int64, in CreateAccountInput) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, level, parent_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+accountColumns, companyID, in.Code, in.Name, string(in.Type), in.Level, in.ParentID))
	if err != nil {
		return Account{}, db.Classify(err)
	}
	return a, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, account Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$3, type=$4, level=$5, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		account.CompanyID, account.ID, account.Name, string(account.Type), account.Level)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("account", account.ID)
	}
	return nil
}

func (r *txRepository) AccountHasLines(ctx context.Context, companyID, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entry_lines WHERE company_id=$1 AND account_id=$2)`, companyID, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (company_id, kind, folio, entry_date, description, reverses_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		entry.CompanyID, string(entry.Kind), entry.Folio, entry.Date, entry.Description, entry.ReversesID, nullInt(entry.CreatedBy)).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, db.Classify(err)
	}
	return entry, nil
}

func (r *txRepository) InsertEntryLines(ctx context.Context, companyID, entryID int64, lines []EntryLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO ledger_entry_lines (entry_id, company_id, line_no, account_id, debit, credit, note)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entryID, companyID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Note)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) GetEntry(ctx context.Context, companyID, entryID int64) (Entry, error) {
	var e Entry
	var createdBy *int64
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, kind, folio, entry_date, description, reverses_id, created_by, created_at
FROM ledger_entries WHERE company_id=$1 AND id=$2`, companyID, entryID).
		Scan(&e.ID, &e.CompanyID, &e.Kind, &e.Folio, &e.Date, &e.Description, &e.ReversesID, &createdBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.NotFound("ledger_entry", entryID)
		}
		return Entry{}, err
	}
	if createdBy != nil {
		e.CreatedBy = *createdBy
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, line_no, account_id, debit, credit, note
FROM ledger_entry_lines WHERE company_id=$1 AND entry_id=$2 ORDER BY line_no`, companyID, entryID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line EntryLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Note); err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func (r *txRepository) HasReversal(ctx context.Context, companyID, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE company_id=$1 AND reverses_id=$2)`, companyID, entryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, kind, folio, entry_date, description, reverses_id, COALESCE(created_by, 0), created_at
FROM ledger_entries
WHERE company_id=$1 AND ($2 = '' OR kind=$2)
  AND entry_date BETWEEN COALESCE($3::date, '-infinity') AND COALESCE($4::date, 'infinity')
ORDER BY entry_date DESC, id DESC
LIMIT $5`, companyID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Kind, &e.Folio, &e.Date, &e.Description, &e.ReversesID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]TrialBalanceRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
JOIN ledger_entry_lines l ON l.account_id = a.id AND l.company_id = a.company_id
JOIN ledger_entries e ON e.id = l.entry_id
WHERE a.company_id=$1
  AND e.entry_date BETWEEN COALESCE($2::date, '-infinity') AND COALESCE($3::date, 'infinity')
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, companyID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TrialBalanceRow{}
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepository) UnbalancedEntries(ctx context.Context, companyID int64) ([]Imbalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.kind, e.folio, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM ledger_entries e
LEFT JOIN ledger_entry_lines l ON l.entry_id = e.id
WHERE e.company_id=$1
GROUP BY e.id, e.kind, e.folio
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) >= $2 OR COUNT(l.id) < 2
ORDER BY e.id`, companyID, shared.MoneyEpsilon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Imbalance{}
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.EntryID, &im.Kind, &im.Folio, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
