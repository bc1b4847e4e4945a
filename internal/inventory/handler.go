package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/movements", h.listMovements)
	r.Post("/movements", h.postMovement)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	problem := httpx.ProblemFor(w, err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("inventory "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.ProblemWith(w, problem)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	var req CreateProductInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "get product", shared.Invalid("id", err.Error()))
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "stock card", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "stock card", shared.Invalid("id", err.Error()))
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "stock card", shared.Invalid("limit", err.Error()))
		return
	}
	movements, err := h.service.ListMovements(r.Context(), tenant, id, int(limit))
	if err != nil {
		h.fail(w, r, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "low stock", err)
		return
	}
	products, err := h.service.ListLowStock(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "post movement", err)
		return
	}
	var req MovementInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "post movement", err)
		return
	}
	movement, err := h.service.PostMovement(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "post movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}
