package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// MovementKind enumerates stock movements.
type MovementKind string

const (
	MovementPurchaseIn      MovementKind = "PURCHASE_IN"
	MovementOutboundProject MovementKind = "OUTBOUND_PROJECT"
	MovementReturnProject   MovementKind = "RETURN_PROJECT"
	MovementAdjustIn        MovementKind = "ADJUST_IN"
	MovementAdjustOut       MovementKind = "ADJUST_OUT"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementPurchaseIn, MovementOutboundProject, MovementReturnProject, MovementAdjustIn, MovementAdjustOut:
		return true
	}
	return false
}

// Outbound reports whether the kind removes stock.
func (k MovementKind) Outbound() bool {
	return k == MovementOutboundProject || k == MovementAdjustOut
}

// RequiresProject reports whether the kind must reference a project.
func (k MovementKind) RequiresProject() bool {
	return k == MovementOutboundProject || k == MovementReturnProject
}

// Signed returns quantity with the sign the kind applies to stock.
func (k MovementKind) Signed(quantity decimal.Decimal) decimal.Decimal {
	if k.Outbound() {
		return quantity.Neg()
	}
	return quantity
}

// Product is a catalog item. Stock caches the movement log.
type Product struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Stock         decimal.Decimal `json:"stock"`
	MinStock      decimal.Decimal `json:"min_stock"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	IsService     bool            `json:"is_service"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Movement is an append-only stock record.
type Movement struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	ProductID  int64           `json:"product_id"`
	ProjectID  *int64          `json:"project_id,omitempty"`
	Kind       MovementKind    `json:"kind"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Note       string          `json:"note,omitempty"`
	RefModule  string          `json:"ref_module,omitempty"`
	RefID      string          `json:"ref_id,omitempty"`
	CreatedBy  int64           `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StockAfter decimal.Decimal `json:"stock_after"`
}

// MovementInput requests a stock movement. UnitCost nil means the product's
// current purchase price.
type MovementInput struct {
	ProductID int64            `json:"product_id" validate:"gt=0"`
	Kind      MovementKind     `json:"kind" validate:"required"`
	Quantity  decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
	ProjectID *int64           `json:"project_id"`
	Note      string           `json:"note" validate:"max=500"`
	RefModule string           `json:"ref_module" validate:"max=32"`
	RefID     string           `json:"ref_id" validate:"omitempty,uuid"`
}

// Validate checks the input before any write.
func (in MovementInput) Validate() error {
	if in.ProductID <= 0 {
		return shared.Invalid("product_id", "required")
	}
	if !in.Kind.Valid() {
		return shared.Invalid("kind", "unknown movement kind")
	}
	if !in.Quantity.IsPositive() {
		return shared.Invalid("quantity", "must be positive")
	}
	if !shared.FitsQuantityScale(in.Quantity) {
		return shared.Invalid("quantity", "at most four decimals")
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return shared.Invalid("unit_cost", "must not be negative")
	}
	if in.ProjectID != nil && *in.ProjectID <= 0 {
		return shared.Invalid("project_id", "must be positive")
	}
	if in.Kind.RequiresProject() && in.ProjectID == nil {
		return shared.Invalid("project_id", "required for "+string(in.Kind))
	}
	return nil
}

// CreateProductInput registers a catalog item, optionally with opening stock.
type CreateProductInput struct {
	Code          string          `json:"code" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	Unit          string          `json:"unit" validate:"max=16"`
	MinStock      decimal.Decimal `json:"min_stock" validate:"gte=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SalePrice     decimal.Decimal `json:"sale_price" validate:"gte=0"`
	IsService     bool            `json:"is_service"`
	OpeningStock  decimal.Decimal `json:"opening_stock" validate:"gte=0"`
}

// Validate checks the product fields.
func (in CreateProductInput) Validate() error {
	if in.Code == "" {
		return shared.Invalid("code", "required")
	}
	if in.Name == "" {
		return shared.Invalid("name", "required")
	}
	for field, v := range map[string]decimal.Decimal{
		"min_stock":      in.MinStock,
		"purchase_price": in.PurchasePrice,
		"sale_price":     in.SalePrice,
		"opening_stock":  in.OpeningStock,
	} {
		if v.IsNegative() {
			return shared.Invalid(field, "must not be negative")
		}
	}
	if !shared.FitsQuantityScale(in.MinStock) {
		return shared.Invalid("min_stock", "at most four decimals")
	}
	if !shared.FitsQuantityScale(in.OpeningStock) {
		return shared.Invalid("opening_stock", "at most four decimals")
	}
	if in.IsService && (in.OpeningStock.IsPositive() || in.MinStock.IsPositive()) {
		return shared.Invalid("is_service", "service products carry no stock")
	}
	return nil
}

// StockDrift reports a product whose cached stock differs from its log.
type StockDrift struct {
	ProductID int64           `json:"product_id"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	Computed  decimal.Decimal `json:"computed"`
}
