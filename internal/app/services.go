package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/accounting"
	"github.com/cimiento/cimiento/internal/billing"
	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/procurement"
	"github.com/cimiento/cimiento/internal/shared"
	"github.com/cimiento/cimiento/internal/treasury"
)

// Services holds the domain services shared by the server, worker and CLI.
type Services struct {
	Accounting  *accounting.Service
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Treasury    *treasury.Service
	Billing     *billing.Service
}

// NewServices wires every domain service over one transaction runner.
func NewServices(pool *pgxpool.Pool, cfg *Config, logger *slog.Logger) *Services {
	attempts := 3
	var taxRate *decimal.Decimal
	if cfg != nil {
		attempts = cfg.DBTxMaxAttempts
		rate := cfg.PurchaseTaxRate
		taxRate = &rate
	}
	runner := db.NewRunner(pool, attempts)
	audit := shared.NewAuditTrail(pool)
	return &Services{
		Accounting:  accounting.NewService(accounting.NewRepository(runner), audit, logger.With(slog.String("module", "accounting"))),
		Inventory:   inventory.NewService(inventory.NewRepository(runner), audit, logger.With(slog.String("module", "inventory"))),
		Procurement: procurement.NewService(procurement.NewRepository(runner), audit, logger.With(slog.String("module", "procurement")), procurement.Config{TaxRate: taxRate}),
		Treasury:    treasury.NewService(treasury.NewRepository(runner), audit, logger.With(slog.String("module", "treasury"))),
		Billing:     billing.NewService(billing.NewRepository(runner), audit, logger.With(slog.String("module", "billing"))),
	}
}
