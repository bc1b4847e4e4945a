package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cimiento/cimiento/internal/app"
	jobmetrics "github.com/cimiento/cimiento/internal/jobs"
	"github.com/cimiento/cimiento/internal/platform/cache"
	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/jobs"
)

// integritySchedule runs each check nightly, staggered so they do not contend.
var integritySchedule = map[string]string{
	jobs.TaskIntegrityLedger:   "0 2 * * *",
	jobs.TaskIntegrityStock:    "20 2 * * *",
	jobs.TaskIntegrityTreasury: "40 2 * * *",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.IsTest() {
		return
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.DBOptions("cimiento-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	services := app.NewServices(pool, cfg, logger)
	integrity := jobs.NewIntegrityJob(jobs.IntegrityConfig{
		Ledger:    services.Accounting,
		Stock:     services.Inventory,
		Treasury:  services.Treasury,
		Companies: jobs.NewCompanyDirectory(pool),
		Logger:    logger,
		Metrics:   jobmetrics.NewMetrics(registry),
	})

	queueOpt, err := cache.QueueOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue redis options", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Redis:       queueOpt,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Integrity:   integrity,
		Schedule:    integritySchedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
