package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// OrderStatus is the purchase order lifecycle state.
type OrderStatus string

const (
	StatusDraft     OrderStatus = "DRAFT"
	StatusSent      OrderStatus = "SENT"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusDraft:   {StatusSent, StatusCancelled},
	StatusSent:    {StatusPartial, StatusCompleted, StatusCancelled},
	StatusPartial: {StatusPartial, StatusCompleted},
}

// CanTransition reports whether the lifecycle allows s -> to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartial, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) transitionTo(to OrderStatus) error {
	if !s.CanTransition(to) {
		return &shared.InvalidStateTransitionError{Entity: "purchase_order", From: string(s), To: string(to)}
	}
	return nil
}

// Supplier is a vendor identified by RFC within a tenant.
type Supplier struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	RFC       string    `json:"rfc"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSupplierInput registers a supplier.
type CreateSupplierInput struct {
	RFC  string `json:"rfc" validate:"required,min=12,max=13"`
	Name string `json:"name" validate:"required,max=200"`
}

// Validate checks supplier fields.
func (in CreateSupplierInput) Validate() error {
	if l := len(in.RFC); l < 12 || l > 13 {
		return shared.Invalid("rfc", "must have 12 or 13 characters")
	}
	if in.Name == "" {
		return shared.Invalid("name", "required")
	}
	return nil
}

// Order is a purchase order header with its lines.
type Order struct {
	ID            int64                `json:"id"`
	CompanyID     int64                `json:"company_id"`
	SupplierID    int64                `json:"supplier_id"`
	ProjectID     *int64               `json:"project_id,omitempty"`
	Folio         int64                `json:"folio"`
	Status        OrderStatus          `json:"status"`
	ExpectedDate  *time.Time           `json:"expected_date,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Tax           decimal.Decimal      `json:"tax"`
	Total         decimal.Decimal      `json:"total"`
	PaidToDate    decimal.Decimal      `json:"paid_to_date"`
	PaymentStatus shared.PaymentStatus `json:"payment_status"`
	CreatedBy     int64                `json:"created_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Lines         []OrderLine          `json:"lines,omitempty"`
}

// FullyReceived reports whether every line has been received in full.
func (o Order) FullyReceived() bool {
	for _, line := range o.Lines {
		if !line.Pending().IsZero() {
			return false
		}
	}
	return len(o.Lines) > 0
}

// OrderLine is one ordered product.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	LineNo      int             `json:"line_no"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Pending returns the quantity still to be received.
func (l OrderLine) Pending() decimal.Decimal {
	return l.Quantity.Sub(l.ReceivedQty)
}

// OrderLineInput describes one requested product.
type OrderLineInput struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// CreateOrderInput opens a DRAFT purchase order.
type CreateOrderInput struct {
	SupplierID   int64            `json:"supplier_id" validate:"gt=0"`
	ProjectID    *int64           `json:"project_id"`
	ExpectedDate *time.Time       `json:"expected_date"`
	Notes        string           `json:"notes" validate:"max=1000"`
	Lines        []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks header and line rules.
func (in CreateOrderInput) Validate() error {
	if in.SupplierID <= 0 {
		return shared.Invalid("supplier_id", "required")
	}
	if in.ProjectID != nil && *in.ProjectID <= 0 {
		return shared.Invalid("project_id", "must be positive")
	}
	if len(in.Lines) == 0 {
		return shared.Invalid("lines", "at least one line required")
	}
	for _, line := range in.Lines {
		if line.ProductID <= 0 {
			return shared.Invalid("lines.product_id", "required")
		}
		if !line.Quantity.IsPositive() {
			return shared.Invalid("lines.quantity", "must be positive")
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

// Totals computes subtotal, tax and total rounded to cents.
func Totals(lines []OrderLineInput, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	for _, line := range lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice))
	}
	subtotal = shared.RoundMoney(subtotal)
	tax = shared.RoundMoney(subtotal.Mul(taxRate))
	return subtotal, tax, subtotal.Add(tax)
}

// UpdateOrderInput changes header fields of a DRAFT order. Nil leaves a field as is.
type UpdateOrderInput struct {
	SupplierID   *int64     `json:"supplier_id" validate:"omitempty,gt=0"`
	ProjectID    *int64     `json:"project_id" validate:"omitempty,gt=0"`
	ExpectedDate *time.Time `json:"expected_date"`
	Notes        *string    `json:"notes" validate:"omitempty,max=1000"`
}

// Validate checks the update.
func (in UpdateOrderInput) Validate() error {
	if in.SupplierID == nil && in.ProjectID == nil && in.ExpectedDate == nil && in.Notes == nil {
		return shared.Invalid("", "nothing to update")
	}
	if in.SupplierID != nil && *in.SupplierID <= 0 {
		return shared.Invalid("supplier_id", "must be positive")
	}
	if in.ProjectID != nil && *in.ProjectID <= 0 {
		return shared.Invalid("project_id", "must be positive")
	}
	return nil
}

// ReceiptItem receives quantity against one order line.
type ReceiptItem struct {
	LineID   int64           `json:"line_id" validate:"gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// ReceiveInput is a goods receipt against an order.
type ReceiveInput struct {
	Items []ReceiptItem `json:"items" validate:"required,min=1,dive"`
}

// Validate checks receipt items.
func (in ReceiveInput) Validate() error {
	if len(in.Items) == 0 {
		return shared.Invalid("items", "at least one item required")
	}
	for _, item := range in.Items {
		if item.LineID <= 0 {
			return shared.Invalid("items.line_id", "required")
		}
		if !item.Quantity.IsPositive() {
			return shared.Invalid("items.quantity", "must be positive")
		}
		if !shared.FitsQuantityScale(item.Quantity) {
			return shared.Invalid("items.quantity", "at most four decimals")
		}
	}
	return nil
}

// OrderFilter narrows List.
type OrderFilter struct {
	Status OrderStatus
	Limit  int
}
