package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/accounting"
	"github.com/cimiento/cimiento/internal/auth"
	"github.com/cimiento/cimiento/internal/billing"
	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/observability"
	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/procurement"
	"github.com/cimiento/cimiento/internal/shared"
	"github.com/cimiento/cimiento/internal/treasury"
	"github.com/cimiento/cimiento/jobs"
)

// Pinger reports backing-store liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Metrics     *observability.Metrics
	Database    Pinger
	Auth        *auth.Service
	Idempotency *shared.IdempotencyStore

	AccountingHandler  *accounting.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	TreasuryHandler    *treasury.Handler
	BillingHandler     *billing.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API mounted under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Database, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(params.Auth, params.Logger))
		r.Use(IdempotencyMiddleware(params.Idempotency, params.Logger))

		if params.AccountingHandler != nil {
			r.Route("/accounting", params.AccountingHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.TreasuryHandler != nil {
			r.Route("/treasury", params.TreasuryHandler.MountRoutes)
		}
		if params.BillingHandler != nil {
			r.Route("/billing", params.BillingHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func healthz(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
