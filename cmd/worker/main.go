package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cafetiko/roastledger/internal/app"
	jobmetrics "github.com/cafetiko/roastledger/internal/jobs"
	"github.com/cafetiko/roastledger/internal/ledger"
	"github.com/cafetiko/roastledger/internal/observability"
	"github.com/cafetiko/roastledger/internal/platform/cache"
	"github.com/cafetiko/roastledger/internal/platform/db"
	"github.com/cafetiko/roastledger/internal/shared"
	"github.com/cafetiko/roastledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	summaryCache := ledger.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, shared.NewAuditLogger(pool), summaryCache, metrics, logger, ledger.ServiceConfig{
		LowStockThresholdG: cfg.LowStockThresholdG,
	})

	tasks := &jobs.Tasks{
		Ledger:      ledgerService,
		Idempotency: shared.NewIdempotencyStore(pool),
		Metrics:     metrics,
		JobMetrics:  jobmetrics.NewMetrics(metrics.Registerer()),
		Logger:      logger,
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(24 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: tasks.HandleLowStockScan},
			{Type: jobs.TaskIdempotencyCleanup, Handler: tasks.HandleIdempotencyCleanup},
		},
		Cron: []jobs.CronRegistration{
			{Spec: fmt.Sprintf("@every %s", cfg.LowStockScanEvery), Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
