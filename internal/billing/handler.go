package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Handler wires billing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/projects", h.createProject)
	r.Get("/projects/{id}/billing-periods", h.listPeriods)
	r.Post("/budgets", h.createBudget)
	r.Post("/billing-periods", h.createPeriod)
	r.Get("/billing-periods/{id}", h.getPeriod)
	r.Post("/billing-periods/{id}/executions", h.recordExecution)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	problem := httpx.ProblemFor(w, err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("billing "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.ProblemWith(w, problem)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create project", err)
		return
	}
	var req CreateProjectInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create project", err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}

func (h *Handler) createBudget(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create budget", err)
		return
	}
	var req CreateBudgetInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create budget", err)
		return
	}
	budget, err := h.service.CreateBudget(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create budget", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, budget)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "create period", err)
		return
	}
	var req CreatePeriodInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "create period", err)
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "get period", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "get period", shared.Invalid("id", err.Error()))
		return
	}
	period, err := h.service.GetPeriod(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "list periods", shared.Invalid("id", err.Error()))
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) recordExecution(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.Tenant(r)
	if err != nil {
		h.fail(w, r, "record execution", err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, "record execution", shared.Invalid("id", err.Error()))
		return
	}
	var req RecordExecutionInput
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, "record execution", err)
		return
	}
	req.PeriodID = id
	billed, err := h.service.RecordExecution(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, r, "record execution", err)
		return
	}
	httpx.JSON(w, http.StatusOK, billed)
}
