package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// Repository provides Postgres backed persistence for procurement.
type Repository struct {
	runner *db.Runner
}

// NewRepository creates repository instance.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations. Inventory shares the same
// transaction so receipts and stock commit together.
type TxRepository interface {
	Folios() sequence.Store
	Inventory() inventory.TxRepository
	InsertSupplier(ctx context.Context, companyID int64, in CreateSupplierInput) (Supplier, error)
	SupplierExists(ctx context.Context, companyID, supplierID int64) (bool, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertOrderLines(ctx context.Context, companyID int64, lines []OrderLine) ([]OrderLine, error)
	GetOrder(ctx context.Context, companyID, orderID int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, companyID, orderID int64) (Order, error)
	UpdateOrderHeader(ctx context.Context, order Order) error
	UpdateOrderStatus(ctx context.Context, companyID, orderID int64, status OrderStatus) error
	SetLineReceived(ctx context.Context, companyID, lineID int64, received decimal.Decimal) error
	ListOrders(ctx context.Context, companyID int64, filter OrderFilter) ([]Order, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a serializable transaction, retrying aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("procurement repository not initialised")
	}
	return r.runner.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *txRepo) Folios() sequence.Store {
	return sequence.NewPgStore(r.tx)
}

func (r *txRepo) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *txRepo) InsertSupplier(ctx context.Context, companyID int64, in CreateSupplierInput) (Supplier, error) {
	sup := Supplier{CompanyID: companyID, RFC: in.RFC, Name: in.Name}
	err := r.tx.QueryRow(ctx, `INSERT INTO suppliers (company_id, rfc, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		companyID, in.RFC, in.Name).Scan(&sup.ID, &sup.CreatedAt)
	if err != nil {
		return Supplier{}, db.Classify(err)
	}
	return sup, nil
}

func (r *txRepo) SupplierExists(ctx context.Context, companyID, supplierID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE company_id=$1 AND id=$2)`, companyID, supplierID).Scan(&exists)
	return exists, err
}

const orderColumns = `id, company_id, supplier_id, project_id, folio, status, expected_date, notes, subtotal, tax, total,
paid_to_date, payment_status, COALESCE(created_by, 0), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CompanyID, &o.SupplierID, &o.ProjectID, &o.Folio, &o.Status, &o.ExpectedDate, &o.Notes,
		&o.Subtotal, &o.Tax, &o.Total, &o.PaidToDate, &o.PaymentStatus, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *txRepo) InsertOrder(ctx context.Context, order Order) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(company_id, supplier_id, project_id, folio, status, expected_date, notes, subtotal, tax, total, payment_status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `+orderColumns,
		order.CompanyID, order.SupplierID, order.ProjectID, order.Folio, string(order.Status), order.ExpectedDate, order.Notes,
		order.Subtotal, order.Tax, order.Total, string(order.PaymentStatus), nullInt(order.CreatedBy)))
	if err != nil {
		return Order{}, db.Classify(err)
	}
	return o, nil
}

func (r *txRepo) InsertOrderLines(ctx context.Context, companyID int64, lines []OrderLine) ([]OrderLine, error) {
	out := make([]OrderLine, 0, len(lines))
	for _, line := range lines {
		err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, company_id, line_no, product_id, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, line.OrderID, companyID, line.LineNo, line.ProductID, line.Quantity, line.UnitPrice).Scan(&line.ID)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepo) GetOrder(ctx context.Context, companyID, orderID int64) (Order, error) {
	return r.loadOrder(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE company_id=$1 AND id=$2`, companyID, orderID)
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, companyID, orderID int64) (Order, error) {
	return r.loadOrder(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, orderID)
}

func (r *txRepo) loadOrder(ctx context.Context, query string, companyID, orderID int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, query, companyID, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.NotFound("purchase_order", orderID)
		}
		return Order{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, line_no, product_id, quantity, received_qty, unit_price
FROM purchase_order_lines WHERE company_id=$1 AND order_id=$2 ORDER BY line_no`, companyID, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.LineNo, &line.ProductID, &line.Quantity, &line.ReceivedQty, &line.UnitPrice); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, line)
	}
	return o, rows.Err()
}

func (r *txRepo) UpdateOrderHeader(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id=$3, project_id=$4, expected_date=$5, notes=$6, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, order.CompanyID, order.ID, order.SupplierID, order.ProjectID, order.ExpectedDate, order.Notes)
	return err
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, companyID, orderID int64, status OrderStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, orderID, string(status))
	return err
}

func (r *txRepo) SetLineReceived(ctx context.Context, companyID, lineID int64, received decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty=$3 WHERE company_id=$1 AND id=$2`, companyID, lineID, received)
	return err
}

func (r *txRepo) ListOrders(ctx context.Context, companyID int64, filter OrderFilter) ([]Order, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE company_id=$1 AND ($2 = '' OR status=$2)
ORDER BY folio DESC
LIMIT $3`, companyID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
