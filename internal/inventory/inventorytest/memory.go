// Package inventorytest provides an in-memory stock repository for tests.
package inventorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/shared"
)

// Store is an in-process inventory.TxRepository. It has no isolation of its own;
// callers serialise access and use Clone to roll back.
type Store struct {
	mu        sync.Mutex
	products  map[int64]inventory.Product
	movements []inventory.Movement
	projects  map[int64]int64
	nextID    int64
	now       func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{products: map[int64]inventory.Product{}, projects: map[int64]int64{}, now: time.Now}
}

// Clone returns a deep copy of the store.
func (m *Store) Clone() *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Store{
		products:  make(map[int64]inventory.Product, len(m.products)),
		movements: append([]inventory.Movement(nil), m.movements...),
		projects:  make(map[int64]int64, len(m.projects)),
		nextID:    m.nextID,
		now:       m.now,
	}
	for id, p := range m.products {
		out.products[id] = p
	}
	for id, c := range m.projects {
		out.projects[id] = c
	}
	return out
}

// AddProject registers a project owned by companyID.
func (m *Store) AddProject(companyID, projectID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[projectID] = companyID
}

// Movements returns every stored movement in insertion order.
func (m *Store) Movements() []inventory.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inventory.Movement(nil), m.movements...)
}

// Corrupt overwrites a product's cached stock without a movement.
func (m *Store) Corrupt(productID int64, stock decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.Stock = stock
	m.products[productID] = p
}

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Store) ProjectExists(_ context.Context, companyID, projectID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.projects[projectID]
	return ok && owner == companyID, nil
}

func (m *Store) InsertProduct(_ context.Context, companyID int64, in inventory.CreateProductInput) (inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.CompanyID == companyID && p.Code == in.Code {
			return inventory.Product{}, &shared.ConflictError{Entity: "products", Constraint: "products_company_code_key"}
		}
	}
	now := m.now()
	p := inventory.Product{
		ID:            m.id(),
		CompanyID:     companyID,
		Code:          in.Code,
		Name:          in.Name,
		Unit:          in.Unit,
		MinStock:      in.MinStock,
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		IsService:     in.IsService,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *Store) GetProduct(_ context.Context, companyID, productID int64) (inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.CompanyID != companyID {
		return inventory.Product{}, shared.NotFound("product", productID)
	}
	return p, nil
}

func (m *Store) GetProductForUpdate(ctx context.Context, companyID, productID int64) (inventory.Product, error) {
	return m.GetProduct(ctx, companyID, productID)
}

func (m *Store) StockFromLog(_ context.Context, companyID, productID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logStock(companyID, productID), nil
}

func (m *Store) logStock(companyID, productID int64) decimal.Decimal {
	stock := decimal.Zero
	for _, mv := range m.movements {
		if mv.CompanyID == companyID && mv.ProductID == productID {
			stock = stock.Add(mv.Kind.Signed(mv.Quantity))
		}
	}
	return stock
}

func (m *Store) InsertMovement(_ context.Context, mv inventory.Movement) (inventory.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv.ID = m.id()
	mv.CreatedAt = m.now()
	m.movements = append(m.movements, mv)
	return mv, nil
}

func (m *Store) SetStock(_ context.Context, companyID, productID int64, stock, purchasePrice decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.CompanyID != companyID {
		return shared.NotFound("product", productID)
	}
	p.Stock = stock
	p.PurchasePrice = purchasePrice
	m.products[productID] = p
	return nil
}

func (m *Store) RepairStock(_ context.Context, companyID, productID int64, stock decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.CompanyID != companyID {
		return shared.NotFound("product", productID)
	}
	p.Stock = stock
	m.products[productID] = p
	return nil
}

func (m *Store) ListMovements(_ context.Context, companyID, productID int64, limit int) ([]inventory.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []inventory.Movement{}
	running := decimal.Zero
	for _, mv := range m.movements {
		if mv.CompanyID != companyID || mv.ProductID != productID {
			continue
		}
		running = running.Add(mv.Kind.Signed(mv.Quantity))
		mv.StockAfter = running
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) ListLowStock(_ context.Context, companyID int64) ([]inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []inventory.Product{}
	for _, p := range m.products {
		if p.CompanyID == companyID && !p.IsService && p.Stock.LessThan(p.MinStock) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) StockDrifts(_ context.Context, companyID int64) ([]inventory.StockDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []inventory.StockDrift{}
	for _, p := range m.products {
		if p.CompanyID != companyID {
			continue
		}
		computed := m.logStock(companyID, p.ID)
		if inventory.Drifted(p.Stock, computed) {
			out = append(out, inventory.StockDrift{ProductID: p.ID, Code: p.Code, Cached: p.Stock, Computed: computed})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
