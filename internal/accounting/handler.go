package accounting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Patch("/accounts/{id}", h.updateAccount)
	r.Get("/entries", h.listEntries)
	r.Post("/entries", h.postEntry)
	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
	r.Get("/trial-balance", h.trialBalance)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	problem := httpx.ProblemFor(w, err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("accounting "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.ProblemWith(w, problem)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	var req CreateAccountInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "update account", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "update account", shared.Invalid("id", err.Error()))
		return
	}
	var req UpdateAccountInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "update account", err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), tenant, id, req)
	if err != nil {
		h.fail(w, r, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "post entry", err)
		return
	}
	var req PostEntryInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "post entry", err)
		return
	}
	entry, err := h.service.PostEntry(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "get entry", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "get entry", shared.Invalid("id", err.Error()))
		return
	}
	entry, err := h.service.GetEntry(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "list entries", err)
		return
	}
	filter := EntryFilter{Kind: EntryKind(r.URL.Query().Get("kind"))}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		h.fail(w, r, "list entries", err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		h.fail(w, r, "list entries", err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "list entries", shared.Invalid("limit", err.Error()))
		return
	}
	filter.Limit = int(limit)
	entries, err := h.service.ListEntries(r.Context(), tenant, filter)
	if err != nil {
		h.fail(w, r, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "reverse entry", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "reverse entry", shared.Invalid("id", err.Error()))
		return
	}
	var req ReverseEntryInput
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			h.fail(w, r, "reverse entry", err)
			return
		}
	}
	req.EntryID = id
	entry, err := h.service.ReverseEntry(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "reverse entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), tenant, from, to)
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
