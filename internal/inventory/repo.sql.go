package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ProjectExists(ctx context.Context, companyID, projectID int64) (bool, error)
	InsertProduct(ctx context.Context, companyID int64, in CreateProductInput) (Product, error)
	GetProduct(ctx context.Context, companyID, productID int64) (Product, error)
	GetProductForUpdate(ctx context.Context, companyID, productID int64) (Product, error)
	StockFromLog(ctx context.Context, companyID, productID int64) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	SetStock(ctx context.Context, companyID, productID int64, stock, purchasePrice decimal.Decimal) error
	RepairStock(ctx context.Context, companyID, productID int64, stock decimal.Decimal) error
	ListMovements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error)
	ListLowStock(ctx context.Context, companyID int64) ([]Product, error)
	StockDrifts(ctx context.Context, companyID int64) ([]StockDrift, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds inventory queries to a transaction owned by another
// module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a serializable transaction, retrying aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("inventory repository not initialised")
	}
	return r.runner.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) ProjectExists(ctx context.Context, companyID, projectID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE company_id=$1 AND id=$2)`, companyID, projectID).Scan(&exists)
	return exists, err
}

const productColumns = `id, company_id, code, name, unit, stock, min_stock, purchase_price, sale_price, is_service, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Unit, &p.Stock, &p.MinStock,
		&p.PurchasePrice, &p.SalePrice, &p.IsService, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *txRepository) InsertProduct(ctx context.Context, companyID int64, in CreateProductInput) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `INSERT INTO products (company_id, code, name, unit, min_stock, purchase_price, sale_price, is_service)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+productColumns,
		companyID, in.Code, in.Name, in.Unit, in.MinStock, in.PurchasePrice, in.SalePrice, in.IsService))
	if err != nil {
		return Product{}, db.Classify(err)
	}
	return p, nil
}

func (r *txRepository) GetProduct(ctx context.Context, companyID, productID int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id=$2`, companyID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound("product", productID)
	}
	return p, err
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, companyID, productID int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound("product", productID)
	}
	return p, err
}

const signedQuantity = `CASE WHEN kind IN ('OUTBOUND_PROJECT','ADJUST_OUT') THEN -quantity ELSE quantity END`

func (r *txRepository) StockFromLog(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	var stock decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(`+signedQuantity+`), 0)
FROM inventory_movements WHERE company_id=$1 AND product_id=$2`, companyID, productID).Scan(&stock)
	return stock, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (company_id, product_id, project_id, kind, quantity, unit_cost, note, ref_module, ref_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		m.CompanyID, m.ProductID, m.ProjectID, string(m.Kind), m.Quantity, m.UnitCost, m.Note, m.RefModule, nullString(m.RefID), nullInt(m.CreatedBy)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, db.Classify(err)
	}
	return m, nil
}

func (r *txRepository) SetStock(ctx context.Context, companyID, productID int64, stock, purchasePrice decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock=$3, purchase_price=$4, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, productID, stock, purchasePrice)
	return err
}

func (r *txRepository) RepairStock(ctx context.Context, companyID, productID int64, stock decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, productID, stock)
	return err
}

func (r *txRepository) ListMovements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, product_id, project_id, kind, quantity, unit_cost, note, ref_module,
       COALESCE(ref_id::text, ''), COALESCE(created_by, 0), created_at,
       SUM(`+signedQuantity+`) OVER (ORDER BY id) AS stock_after
FROM inventory_movements
WHERE company_id=$1 AND product_id=$2
ORDER BY id DESC
LIMIT $3`, companyID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ProductID, &m.ProjectID, &m.Kind, &m.Quantity, &m.UnitCost, &m.Note,
			&m.RefModule, &m.RefID, &m.CreatedBy, &m.CreatedAt, &m.StockAfter); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) ListLowStock(ctx context.Context, companyID int64) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE company_id=$1 AND NOT is_service AND stock < min_stock
ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) StockDrifts(ctx context.Context, companyID int64) ([]StockDrift, error) {
	rows, err := r.tx.Query(ctx, `SELECT p.id, p.code, p.stock, COALESCE(SUM(CASE WHEN m.kind IN ('OUTBOUND_PROJECT','ADJUST_OUT') THEN -m.quantity ELSE m.quantity END), 0) AS computed
FROM products p
LEFT JOIN inventory_movements m ON m.product_id = p.id AND m.company_id = p.company_id
WHERE p.company_id=$1
GROUP BY p.id, p.code, p.stock
HAVING ABS(p.stock - COALESCE(SUM(CASE WHEN m.kind IN ('OUTBOUND_PROJECT','ADJUST_OUT') THEN -m.quantity ELSE m.quantity END), 0)) > $2
ORDER BY p.id`, companyID, shared.QuantityEpsilon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StockDrift{}
	for rows.Next() {
		var d StockDrift
		if err := rows.Scan(&d.ProductID, &d.Code, &d.Cached, &d.Computed); err != nil {
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

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
