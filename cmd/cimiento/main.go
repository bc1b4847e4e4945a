package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cimiento/cimiento/internal/accounting"
	"github.com/cimiento/cimiento/internal/app"
	"github.com/cimiento/cimiento/internal/auth"
	"github.com/cimiento/cimiento/internal/billing"
	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/internal/observability"
	"github.com/cimiento/cimiento/internal/platform/cache"
	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/procurement"
	"github.com/cimiento/cimiento/internal/shared"
	"github.com/cimiento/cimiento/internal/treasury"
	"github.com/cimiento/cimiento/jobs"
)

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

	pool, err := db.New(ctx, cfg.DBOptions("cimiento"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(pool, cfg, logger)
	authService := auth.NewService(auth.NewRepository(pool), redisClient, cfg.AuthCacheTTL, logger)

	queueOpt, err := cache.QueueOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue redis options", slog.Any("error", err))
		os.Exit(1)
	}
	inspector := asynq.NewInspector(queueOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Database:           pool,
		Auth:               authService,
		Idempotency:        shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL),
		AccountingHandler:  accounting.NewHandler(logger, services.Accounting),
		InventoryHandler:   inventory.NewHandler(logger, services.Inventory),
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		TreasuryHandler:    treasury.NewHandler(logger, services.Treasury),
		BillingHandler:     billing.NewHandler(logger, services.Billing),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
