package treasury

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Handler wires treasury endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers treasury routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bank-accounts", h.createAccount)
	r.Get("/bank-accounts/{id}", h.getAccount)
	r.Get("/bank-accounts/{id}/transactions", h.listTransactions)
	r.Post("/transactions", h.postTransaction)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	problem := httpx.ProblemFor(w, err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("treasury "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.ProblemWith(w, problem)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create bank account", err)
		return
	}
	var req CreateBankAccountInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create bank account", err)
		return
	}
	account, err := h.service.CreateBankAccount(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create bank account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "get bank account", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "get bank account", shared.Invalid("id", err.Error()))
		return
	}
	account, err := h.service.GetBankAccount(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "get bank account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "list transactions", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "list transactions", shared.Invalid("id", err.Error()))
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "list transactions", shared.Invalid("limit", err.Error()))
		return
	}
	txs, err := h.service.ListTransactions(r.Context(), tenant, id, int(limit))
	if err != nil {
		h.fail(w, r, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "post transaction", err)
		return
	}
	var req TransactionInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "post transaction", err)
		return
	}
	posted, err := h.service.PostTransaction(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "post transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}
