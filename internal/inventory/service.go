package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// PostMovement records one stock movement in its own transaction.
func (s *Service) PostMovement(ctx context.Context, tenant shared.Tenant, input MovementInput) (Movement, error) {
	if err := tenant.Validate(); err != nil {
		return Movement{}, err
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = PostMovementTx(ctx, tx, tenant, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, tenant, "inventory:"+string(movement.Kind), "inventory_movement", movement.ID, map[string]any{
		"product_id": movement.ProductID,
		"qty":        movement.Quantity.String(),
		"note":       movement.Note,
	})
	return movement, nil
}

// CheckMovementTx runs the read-only preconditions of PostMovementTx, so a
// caller posting several movements can reject the batch before writing any.
// Stock sufficiency is not checked because earlier movements of the batch
// may change it.
func CheckMovementTx(ctx context.Context, tx TxRepository, tenant shared.Tenant, input MovementInput) error {
	_, err := checkMovement(ctx, tx, tenant, input)
	return err
}

func checkMovement(ctx context.Context, tx TxRepository, tenant shared.Tenant, input MovementInput) (Product, error) {
	if err := tenant.Validate(); err != nil {
		return Product{}, err
	}
	if err := input.Validate(); err != nil {
		return Product{}, err
	}
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return Product{}, shared.Invalid("ref_id", "must be a uuid")
		}
	}
	product, err := tx.GetProductForUpdate(ctx, tenant.CompanyID, input.ProductID)
	if err != nil {
		return Product{}, err
	}
	if product.IsService {
		return Product{}, shared.Invalid("product_id", "service products carry no stock")
	}
	if input.ProjectID != nil {
		ok, err := tx.ProjectExists(ctx, tenant.CompanyID, *input.ProjectID)
		if err != nil {
			return Product{}, err
		}
		if !ok {
			return Product{}, shared.NotFound("project", *input.ProjectID)
		}
	}
	return product, nil
}

// PostMovementTx applies a movement inside a transaction owned by the caller.
// The product row is locked and stock is recomputed from the movement log
// before the outbound check, so products.stock only ever caches the log.
func PostMovementTx(ctx context.Context, tx TxRepository, tenant shared.Tenant, input MovementInput) (Movement, error) {
	product, err := checkMovement(ctx, tx, tenant, input)
	if err != nil {
		return Movement{}, err
	}
	stock, err := tx.StockFromLog(ctx, tenant.CompanyID, product.ID)
	if err != nil {
		return Movement{}, err
	}
	if input.Kind.Outbound() && input.Quantity.GreaterThan(stock) {
		return Movement{}, &shared.InsufficientStockError{ProductID: product.ID, Available: stock, Requested: input.Quantity}
	}
	unitCost := product.PurchasePrice
	if input.UnitCost != nil {
		unitCost = *input.UnitCost
	}
	movement, err := tx.InsertMovement(ctx, Movement{
		CompanyID: tenant.CompanyID,
		ProductID: product.ID,
		ProjectID: input.ProjectID,
		Kind:      input.Kind,
		Quantity:  input.Quantity,
		UnitCost:  unitCost,
		Note:      input.Note,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		CreatedBy: tenant.ActorID,
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	movement.StockAfter = stock.Add(input.Kind.Signed(input.Quantity))
	if err := tx.SetStock(ctx, tenant.CompanyID, product.ID, movement.StockAfter, unitCost); err != nil {
		return Movement{}, fmt.Errorf("inventory: set stock: %w", err)
	}
	return movement, nil
}

// CreateProduct adds a catalog item and posts its opening stock as ADJUST_IN.
func (s *Service) CreateProduct(ctx context.Context, tenant shared.Tenant, input CreateProductInput) (Product, error) {
	if err := tenant.Validate(); err != nil {
		return Product{}, err
	}
	if err := input.Validate(); err != nil {
		return Product{}, err
	}
	if input.Unit == "" {
		input.Unit = "PZA"
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.InsertProduct(ctx, tenant.CompanyID, input)
		if err != nil {
			return err
		}
		if !input.OpeningStock.IsPositive() {
			return nil
		}
		cost := input.PurchasePrice
		movement, err := PostMovementTx(ctx, tx, tenant, MovementInput{
			ProductID: product.ID,
			Kind:      MovementAdjustIn,
			Quantity:  input.OpeningStock,
			UnitCost:  &cost,
			Note:      "opening stock",
			RefModule: "inventory",
		})
		if err != nil {
			return err
		}
		product.Stock = movement.StockAfter
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, tenant, "product.create", "product", product.ID, map[string]any{"code": product.Code})
	return product, nil
}

// GetProduct returns one product of the tenant.
func (s *Service) GetProduct(ctx context.Context, tenant shared.Tenant, productID int64) (Product, error) {
	if err := tenant.Validate(); err != nil {
		return Product{}, err
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.GetProduct(ctx, tenant.CompanyID, productID)
		return err
	})
	return product, err
}

// ListMovements returns the kardex of a product, newest first, each row
// carrying the running stock after it.
func (s *Service) ListMovements(ctx context.Context, tenant shared.Tenant, productID int64, limit int) ([]Movement, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var movements []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProduct(ctx, tenant.CompanyID, productID); err != nil {
			return err
		}
		var err error
		movements, err = tx.ListMovements(ctx, tenant.CompanyID, productID, shared.ListLimit(limit))
		return err
	})
	return movements, err
}

// ListLowStock returns stocked products below their minimum.
func (s *Service) ListLowStock(ctx context.Context, tenant shared.Tenant) ([]Product, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var products []Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		products, err = tx.ListLowStock(ctx, tenant.CompanyID)
		return err
	})
	return products, err
}

// ReconcileStock compares each product's cached stock with its movement log.
// With repair set, drifted caches are overwritten with the computed value.
func (s *Service) ReconcileStock(ctx context.Context, companyID int64, repair bool) ([]StockDrift, error) {
	if companyID <= 0 {
		return nil, shared.Invalid("company_id", "tenant not resolved")
	}
	var drifts []StockDrift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		drifts, err = tx.StockDrifts(ctx, companyID)
		if err != nil || !repair {
			return err
		}
		for _, d := range drifts {
			if err := tx.RepairStock(ctx, companyID, d.ProductID, d.Computed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		s.logger.Warn("inventory stock drift", slog.Int64("company_id", companyID), slog.Int("products", len(drifts)), slog.Bool("repaired", repair))
	}
	return drifts, nil
}

// Drifted reports whether cached and computed stock differ beyond tolerance.
func Drifted(cached, computed decimal.Decimal) bool {
	return !shared.WithinEpsilon(cached, computed, shared.QuantityEpsilon)
}

func (s *Service) record(ctx context.Context, tenant shared.Tenant, action, entity string, id int64, meta map[string]any) {
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
