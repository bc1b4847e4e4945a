package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

// integrityRetries bounds redelivery of a failed integrity run.
const integrityRetries = 3

// WorkerConfig collects what the integrity worker needs.
type WorkerConfig struct {
	Redis       asynq.RedisConnOpt
	Logger      *slog.Logger
	Concurrency int
	Integrity   *IntegrityJob
	// Schedule maps integrity task types to cron specs (UTC). Types left out
	// run only when enqueued by hand.
	Schedule map[string]string
}

// Worker processes integrity tasks and, when a schedule is set, enqueues them
// on cron.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

type cronEntry struct {
	spec     string
	taskType string
}

// cronEntries validates a schedule and returns it in task order.
func cronEntries(schedule map[string]string) ([]cronEntry, error) {
	out := make([]cronEntry, 0, len(schedule))
	for taskType, spec := range schedule {
		if !knownTask(taskType) {
			return nil, fmt.Errorf("jobs: schedule for unknown task %q", taskType)
		}
		if spec == "" {
			return nil, fmt.Errorf("jobs: empty cron spec for %s", taskType)
		}
		out = append(out, cronEntry{spec: spec, taskType: taskType})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].taskType < out[j].taskType })
	return out, nil
}

// NewWorker routes every integrity task type to cfg.Integrity.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Integrity == nil {
		return nil, errors.New("jobs: integrity job required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("jobs: redis connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	entries, err := cronEntries(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	for _, taskType := range IntegrityTaskTypes {
		mux.HandleFunc(taskType, cfg.Integrity.Handle)
	}
	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			limit, _ := asynq.GetMaxRetry(ctx)
			logger.Error("integrity task failed",
				slog.String("task", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", limit),
				slog.Any("error", err))
		}),
	})

	w := &Worker{server: server, mux: mux, logger: logger}
	if len(entries) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{Location: time.UTC})
	for _, entry := range entries {
		task, err := NewIntegrityTask(entry.taskType, IntegrityPayload{})
		if err != nil {
			return nil, err
		}
		id, err := w.scheduler.Register(entry.spec, task, asynq.MaxRetry(integrityRetries))
		if err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", entry.taskType, err)
		}
		logger.Info("integrity check scheduled", slog.String("task", entry.taskType), slog.String("cron", entry.spec), slog.String("entry", id))
	}
	return w, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	w.logger.Info("integrity worker running")

	<-ctx.Done()
	w.logger.Info("integrity worker stopping")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return nil
}
