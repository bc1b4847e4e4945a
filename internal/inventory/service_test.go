package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/inventory/inventorytest"
	"github.com/cimiento/cimiento/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	store *inventorytest.Store
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: inventorytest.NewStore()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.store.Clone()
	if err := fn(ctx, r.store); err != nil {
		r.store = snapshot
		return err
	}
	return nil
}

var tenant = shared.Tenant{CompanyID: 1, ActorID: 9}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64Ptr(v int64) *int64 { return &v }

func newProduct(t *testing.T, svc *inventory.Service, code, opening string) inventory.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), tenant, inventory.CreateProductInput{
		Code:          code,
		Name:          "Cemento " + code,
		MinStock:      dec("5"),
		PurchasePrice: dec("180"),
		OpeningStock:  dec(opening),
	})
	require.NoError(t, err)
	return p
}

func TestOpeningStockIsPostedAsAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)

	p := newProduct(t, svc, "CEM-01", "12")
	require.True(t, p.Stock.Equal(dec("12")))
	require.Equal(t, "PZA", p.Unit)

	movements := repo.store.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementAdjustIn, movements[0].Kind)
	require.True(t, movements[0].UnitCost.Equal(dec("180")))
}

func TestPostMovementKeepsStockNonNegative(t *testing.T) {
	repo := newMemoryRepo()
	repo.store.AddProject(1, 40)
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "VAR-38", "10")

	out, err := svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementOutboundProject, Quantity: dec("10"), ProjectID: int64Ptr(40)})
	require.NoError(t, err)
	require.True(t, out.StockAfter.IsZero())

	_, err = svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustOut, Quantity: dec("0.5")})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.True(t, short.Available.IsZero())
	require.True(t, short.Requested.Equal(dec("0.5")))

	got, err := svc.GetProduct(ctx, tenant, p.ID)
	require.NoError(t, err)
	require.True(t, got.Stock.IsZero())
	require.Len(t, repo.store.Movements(), 2)
}

func TestPostMovementRecomputesFromLog(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "ARN-01", "3")

	// a stale cache must not let an outbound movement through
	repo.store.Corrupt(p.ID, dec("100"))
	_, err := svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustOut, Quantity: dec("4")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	mv, err := svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("2")})
	require.NoError(t, err)
	require.True(t, mv.StockAfter.Equal(dec("5")))
	got, err := svc.GetProduct(ctx, tenant, p.ID)
	require.NoError(t, err)
	require.True(t, got.Stock.Equal(dec("5")))
}

func TestUnitCostUpdatesPurchasePrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "BLK-15", "0")

	mv, err := svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementPurchaseIn, Quantity: dec("100"), UnitCost: decPtr("12.50")})
	require.NoError(t, err)
	require.True(t, mv.UnitCost.Equal(dec("12.50")))

	mv, err = svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustOut, Quantity: dec("1")})
	require.NoError(t, err)
	require.True(t, mv.UnitCost.Equal(dec("12.50")))

	got, err := svc.GetProduct(ctx, tenant, p.ID)
	require.NoError(t, err)
	require.True(t, got.PurchasePrice.Equal(dec("12.50")))
}

func TestPostMovementRules(t *testing.T) {
	repo := newMemoryRepo()
	repo.store.AddProject(2, 77)
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "GRV-01", "10")
	labour, err := svc.CreateProduct(ctx, tenant, inventory.CreateProductInput{Code: "MO-01", Name: "Mano de obra", IsService: true})
	require.NoError(t, err)

	cases := map[string]struct {
		input inventory.MovementInput
		want  error
	}{
		"zero quantity":        {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: decimal.Zero}, shared.ErrValidation},
		"five decimals":        {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("0.00004")}, shared.ErrValidation},
		"unknown kind":         {inventory.MovementInput{ProductID: p.ID, Kind: "GIFT", Quantity: dec("1")}, shared.ErrValidation},
		"project required":     {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementOutboundProject, Quantity: dec("1")}, shared.ErrValidation},
		"return needs project": {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementReturnProject, Quantity: dec("1")}, shared.ErrValidation},
		"foreign project":      {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementOutboundProject, Quantity: dec("1"), ProjectID: int64Ptr(77)}, shared.ErrNotFound},
		"service product":      {inventory.MovementInput{ProductID: labour.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("1")}, shared.ErrValidation},
		"missing product":      {inventory.MovementInput{ProductID: 999, Kind: inventory.MovementAdjustIn, Quantity: dec("1")}, shared.ErrNotFound},
		"bad ref id":           {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("1"), RefID: "po-1"}, shared.ErrValidation},
		"negative unit cost":   {inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("1"), UnitCost: decPtr("-1")}, shared.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.PostMovement(ctx, tenant, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Len(t, repo.store.Movements(), 1)
}

func TestProductIsolatedByTenant(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "CEM-01", "1")

	other := shared.Tenant{CompanyID: 2}
	_, err := svc.GetProduct(ctx, other, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.PostMovement(ctx, other, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustIn, Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// codes are unique per tenant only
	_, err = svc.CreateProduct(ctx, other, inventory.CreateProductInput{Code: "CEM-01", Name: "Cemento"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, tenant, inventory.CreateProductInput{Code: "CEM-01", Name: "Cemento"})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.GetProduct(ctx, shared.Tenant{}, p.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListMovementsCarriesRunningBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "TUB-01", "4")

	_, err := svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementPurchaseIn, Quantity: dec("6")})
	require.NoError(t, err)
	_, err = svc.PostMovement(ctx, tenant, inventory.MovementInput{ProductID: p.ID, Kind: inventory.MovementAdjustOut, Quantity: dec("3")})
	require.NoError(t, err)

	movements, err := svc.ListMovements(ctx, tenant, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	require.True(t, movements[0].StockAfter.Equal(dec("7")))
	require.True(t, movements[1].StockAfter.Equal(dec("10")))
	require.True(t, movements[2].StockAfter.Equal(dec("4")))

	movements, err = svc.ListMovements(ctx, tenant, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

func TestListLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	low := newProduct(t, svc, "A-LOW", "2")
	newProduct(t, svc, "B-OK", "9")
	_, err := svc.CreateProduct(ctx, tenant, inventory.CreateProductInput{Code: "C-SRV", Name: "Flete", IsService: true})
	require.NoError(t, err)

	products, err := svc.ListLowStock(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, low.ID, products[0].ID)
}

func TestReconcileStockRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := inventory.NewService(repo, nil, nil)
	ctx := context.Background()
	p := newProduct(t, svc, "CAB-01", "8")
	newProduct(t, svc, "CAB-02", "1")
	repo.store.Corrupt(p.ID, dec("11"))

	drifts, err := svc.ReconcileStock(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, p.ID, drifts[0].ProductID)
	require.True(t, drifts[0].Computed.Equal(dec("8")))

	_, err = svc.ReconcileStock(ctx, 1, true)
	require.NoError(t, err)
	drifts, err = svc.ReconcileStock(ctx, 1, false)
	require.NoError(t, err)
	require.Empty(t, drifts)

	_, err = svc.ReconcileStock(ctx, 0, false)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDriftedTolerance(t *testing.T) {
	require.False(t, inventory.Drifted(dec("1"), dec("1.00005")))
	require.True(t, inventory.Drifted(dec("1"), dec("1.001")))
}
