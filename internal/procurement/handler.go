package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.createSupplier)
	r.Get("/purchase-orders", h.listOrders)
	r.Post("/purchase-orders", h.createOrder)
	r.Get("/purchase-orders/{id}", h.getOrder)
	r.Patch("/purchase-orders/{id}", h.updateOrder)
	r.Post("/purchase-orders/{id}/send", h.sendOrder)
	r.Post("/purchase-orders/{id}/receive", h.receiveOrder)
	r.Post("/purchase-orders/{id}/cancel", h.cancelOrder)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	problem := httpx.ProblemFor(w, err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("procurement "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.ProblemWith(w, problem)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create supplier", err)
		return
	}
	var req CreateSupplierInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create supplier", err)
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	var req CreateOrderInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	order, err := h.service.Create(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "list orders", shared.Invalid("limit", err.Error()))
		return
	}
	orders, err := h.service.List(r.Context(), tenant, OrderFilter{Status: OrderStatus(r.URL.Query().Get("status")), Limit: int(limit)})
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.orderTarget(w, r, "get order")
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.orderTarget(w, r, "update order")
	if !ok {
		return
	}
	var req UpdateOrderInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "update order", err)
		return
	}
	order, err := h.service.Update(r.Context(), tenant, id, req)
	if err != nil {
		h.fail(w, r, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) sendOrder(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.orderTarget(w, r, "send order")
	if !ok {
		return
	}
	order, err := h.service.Send(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "send order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.orderTarget(w, r, "cancel order")
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receiveOrder(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.orderTarget(w, r, "receive order")
	if !ok {
		return
	}
	var req ReceiveInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "receive order", err)
		return
	}
	order, err := h.service.Receive(r.Context(), tenant, id, req)
	if err != nil {
		h.fail(w, r, "receive order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderTarget(w http.ResponseWriter, r *http.Request, op string) (shared.Tenant, int64, bool) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, op, err)
		return shared.Tenant{}, 0, false
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, op, shared.Invalid("id", err.Error()))
		return shared.Tenant{}, 0, false
	}
	return tenant, id, true
}
