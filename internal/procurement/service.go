package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// DefaultTaxRate is applied when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.16")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups service settings.
type Config struct {
	// TaxRate nil means DefaultTaxRate. Zero is a valid rate.
	TaxRate *decimal.Decimal
}

// Service orchestrates purchase order flows.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	logger  *slog.Logger
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	rate := DefaultTaxRate
	if cfg.TaxRate != nil {
		rate = *cfg.TaxRate
	}
	return &Service{repo: repo, audit: audit, logger: logger, taxRate: rate, now: time.Now}
}

// CreateSupplier registers a supplier; RFCs are unique per tenant.
func (s *Service) CreateSupplier(ctx context.Context, tenant shared.Tenant, input CreateSupplierInput) (Supplier, error) {
	if err := tenant.Validate(); err != nil {
		return Supplier{}, err
	}
	if err := input.Validate(); err != nil {
		return Supplier{}, err
	}
	var supplier Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		supplier, err = tx.InsertSupplier(ctx, tenant.CompanyID, input)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, tenant, "SUPPLIER_CREATE", "supplier", supplier.ID, map[string]any{"rfc": supplier.RFC})
	return supplier, nil
}

// Create opens a DRAFT order with its own folio.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateOrderInput) (Order, error) {
	if err := tenant.Validate(); err != nil {
		return Order{}, err
	}
	if err := input.Validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkParties(ctx, tx, tenant, input.SupplierID, input.ProjectID); err != nil {
			return err
		}
		for _, line := range input.Lines {
			product, err := tx.Inventory().GetProduct(ctx, tenant.CompanyID, line.ProductID)
			if err != nil {
				return err
			}
			if product.IsService {
				return shared.Invalid("lines.product_id", "service products cannot be received")
			}
		}
		folio, err := sequence.Next(ctx, tx.Folios(), sequence.Scope{CompanyID: tenant.CompanyID, DocType: sequence.DocPurchaseOrder})
		if err != nil {
			return err
		}
		subtotal, tax, total := Totals(input.Lines, s.taxRate)
		order, err = tx.InsertOrder(ctx, Order{
			CompanyID:     tenant.CompanyID,
			SupplierID:    input.SupplierID,
			ProjectID:     input.ProjectID,
			Folio:         folio,
			Status:        StatusDraft,
			ExpectedDate:  input.ExpectedDate,
			Notes:         input.Notes,
			Subtotal:      subtotal,
			Tax:           tax,
			Total:         total,
			PaymentStatus: shared.PaymentUnpaid,
			CreatedBy:     tenant.ActorID,
		})
		if err != nil {
			return fmt.Errorf("procurement: insert order: %w", err)
		}
		lines := make([]OrderLine, 0, len(input.Lines))
		for idx, line := range input.Lines {
			lines = append(lines, OrderLine{
				OrderID:   order.ID,
				LineNo:    idx + 1,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		order.Lines, err = tx.InsertOrderLines(ctx, tenant.CompanyID, lines)
		if err != nil {
			return fmt.Errorf("procurement: insert lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, tenant, "PO_CREATE", "purchase_order", order.ID, map[string]any{
		"folio": order.Folio,
		"total": order.Total.StringFixed(2),
	})
	return order, nil
}

func (s *Service) checkParties(ctx context.Context, tx TxRepository, tenant shared.Tenant, supplierID int64, projectID *int64) error {
	ok, err := tx.SupplierExists(ctx, tenant.CompanyID, supplierID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFound("supplier", supplierID)
	}
	if projectID == nil {
		return nil
	}
	ok, err = tx.Inventory().ProjectExists(ctx, tenant.CompanyID, *projectID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFound("project", *projectID)
	}
	return nil
}

// Send moves a DRAFT order to SENT.
func (s *Service) Send(ctx context.Context, tenant shared.Tenant, orderID int64) (Order, error) {
	return s.transition(ctx, tenant, orderID, StatusSent, "PO_SEND")
}

// Cancel cancels a DRAFT or SENT order.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, orderID int64) (Order, error) {
	return s.transition(ctx, tenant, orderID, StatusCancelled, "PO_CANCEL")
}

func (s *Service) transition(ctx context.Context, tenant shared.Tenant, orderID int64, to OrderStatus, action string) (Order, error) {
	if err := tenant.Validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, tenant.CompanyID, orderID)
		if err != nil {
			return err
		}
		if err := order.Status.transitionTo(to); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, tenant.CompanyID, orderID, to); err != nil {
			return err
		}
		order.Status = to
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, tenant, action, "purchase_order", orderID, map[string]any{"status": to})
	return order, nil
}

// Receive posts a goods receipt. Every item becomes a PURCHASE_IN movement in
// the same transaction; any failure leaves the order, its lines and stock
// untouched.
func (s *Service) Receive(ctx context.Context, tenant shared.Tenant, orderID int64, input ReceiveInput) (Order, error) {
	if err := tenant.Validate(); err != nil {
		return Order{}, err
	}
	if err := input.Validate(); err != nil {
		return Order{}, err
	}
	receiptID := uuid.NewString()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, tenant.CompanyID, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusSent && order.Status != StatusPartial {
			return &shared.InvalidStateTransitionError{Entity: "purchase_order", From: string(order.Status), To: string(StatusPartial)}
		}
		index := make(map[int64]int, len(order.Lines))
		for i, line := range order.Lines {
			index[line.ID] = i
		}
		// every item is checked before the first movement is written
		received := make(map[int64]decimal.Decimal, len(input.Items))
		movements := make([]inventory.MovementInput, 0, len(input.Items))
		for _, item := range input.Items {
			i, ok := index[item.LineID]
			if !ok {
				return shared.NotFound("purchase_order_line", item.LineID)
			}
			line := order.Lines[i]
			total, seen := received[line.ID]
			if !seen {
				total = line.ReceivedQty
			}
			total = total.Add(item.Quantity)
			if total.GreaterThan(line.Quantity) {
				return shared.Invalid("items.quantity", fmt.Sprintf("line %d would receive %s of %s", line.LineNo, total, line.Quantity))
			}
			received[line.ID] = total
			cost := line.UnitPrice
			movement := inventory.MovementInput{
				ProductID: line.ProductID,
				Kind:      inventory.MovementPurchaseIn,
				Quantity:  item.Quantity,
				UnitCost:  &cost,
				ProjectID: order.ProjectID,
				Note:      fmt.Sprintf("PO %d line %d", order.Folio, line.LineNo),
				RefModule: "procurement",
				RefID:     receiptID,
			}
			if err := inventory.CheckMovementTx(ctx, tx.Inventory(), tenant, movement); err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		for _, movement := range movements {
			if _, err := inventory.PostMovementTx(ctx, tx.Inventory(), tenant, movement); err != nil {
				return err
			}
		}
		for i := range order.Lines {
			line := &order.Lines[i]
			total, ok := received[line.ID]
			if !ok {
				continue
			}
			if err := tx.SetLineReceived(ctx, tenant.CompanyID, line.ID, total); err != nil {
				return fmt.Errorf("procurement: update line: %w", err)
			}
			line.ReceivedQty = total
		}
		next := StatusPartial
		if order.FullyReceived() {
			next = StatusCompleted
		}
		if err := order.Status.transitionTo(next); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, tenant.CompanyID, orderID, next); err != nil {
			return err
		}
		order.Status = next
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, tenant, "PO_RECEIVE", "purchase_order", orderID, map[string]any{
		"receipt_id": receiptID,
		"items":      len(input.Items),
		"status":     order.Status,
	})
	return order, nil
}

// Update changes header fields of a DRAFT order.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, orderID int64, input UpdateOrderInput) (Order, error) {
	if err := tenant.Validate(); err != nil {
		return Order{}, err
	}
	if err := input.Validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, tenant.CompanyID, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusDraft {
			return &shared.InvalidStateTransitionError{Entity: "purchase_order", From: string(order.Status), To: string(StatusDraft)}
		}
		if input.SupplierID != nil {
			order.SupplierID = *input.SupplierID
		}
		if input.ProjectID != nil {
			order.ProjectID = input.ProjectID
		}
		if input.ExpectedDate != nil {
			order.ExpectedDate = input.ExpectedDate
		}
		if input.Notes != nil {
			order.Notes = *input.Notes
		}
		if err := s.checkParties(ctx, tx, tenant, order.SupplierID, order.ProjectID); err != nil {
			return err
		}
		return tx.UpdateOrderHeader(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, tenant, "PO_UPDATE", "purchase_order", orderID, nil)
	return order, nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, orderID int64) (Order, error) {
	if err := tenant.Validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrder(ctx, tenant.CompanyID, orderID)
		return err
	})
	return order, err
}

// List returns order headers, newest folio first.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, filter OrderFilter) ([]Order, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Invalid("status", "unknown status")
	}
	filter.Limit = shared.ListLimit(filter.Limit)
	var orders []Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		orders, err = tx.ListOrders(ctx, tenant.CompanyID, filter)
		return err
	})
	return orders, err
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.ActorID,
		Action:    action,
		Entity:    entity,
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
