package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/cimiento/cimiento/internal/platform/httpx"
)

const (
	// integrityTimeout caps one run across every company.
	integrityTimeout = 10 * time.Minute
	// uniqueWindow refuses a second identical check while one is queued.
	uniqueWindow = 30 * time.Minute
)

// ErrAlreadyQueued is returned when an identical check is still pending.
var ErrAlreadyQueued = errors.New("jobs: identical check already queued")

// Enqueuer submits integrity checks on demand.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer connects an asynq client.
func NewEnqueuer(redis asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redis)}
}

// Enqueue queues one check. Checks with the same type and payload are
// deduplicated for uniqueWindow.
func (e *Enqueuer) Enqueue(ctx context.Context, taskType string, payload IntegrityPayload) (*asynq.TaskInfo, error) {
	task, err := NewIntegrityTask(taskType, payload)
	if err != nil {
		return nil, err
	}
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(integrityRetries),
		asynq.Timeout(integrityTimeout),
		asynq.Unique(uniqueWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, taskType)
	}
	return info, err
}

// Close releases the client connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// QueueInspector is the part of asynq.Inspector the HTTP endpoints read.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	SchedulerEntries() ([]*asynq.SchedulerEntry, error)
}

// Handler exposes queue state for operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil inspector answers 503.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/schedule", h.schedule)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Paused    bool   `json:"paused"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job inspector not configured")
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "queue state could not be read")
		return
	}
	httpx.JSON(w, http.StatusOK, queueHealth{
		Queue:     info.Queue,
		Paused:    info.Paused,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
	})
}

type scheduleEntry struct {
	ID      string     `json:"id"`
	Task    string     `json:"task"`
	Cron    string     `json:"cron"`
	NextRun time.Time  `json:"next_run"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job inspector not configured")
		return
	}
	entries, err := h.inspector.SchedulerEntries()
	if err != nil {
		h.logger.Warn("jobs schedule", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "schedule could not be read")
		return
	}
	out := make([]scheduleEntry, 0, len(entries))
	for _, e := range entries {
		if e.Task == nil || !knownTask(e.Task.Type()) {
			continue
		}
		entry := scheduleEntry{ID: e.ID, Task: e.Task.Type(), Cron: e.Spec, NextRun: e.Next}
		if !e.Prev.IsZero() {
			prev := e.Prev
			entry.LastRun = &prev
		}
		out = append(out, entry)
	}
	httpx.JSON(w, http.StatusOK, out)
}
