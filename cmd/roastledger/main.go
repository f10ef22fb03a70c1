package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/cafetiko/roastledger/internal/app"
	"github.com/cafetiko/roastledger/internal/catalog"
	"github.com/cafetiko/roastledger/internal/ledger"
	"github.com/cafetiko/roastledger/internal/observability"
	"github.com/cafetiko/roastledger/internal/orders"
	"github.com/cafetiko/roastledger/internal/platform/cache"
	"github.com/cafetiko/roastledger/internal/platform/db"
	"github.com/cafetiko/roastledger/internal/production"
	"github.com/cafetiko/roastledger/internal/roastimport"
	"github.com/cafetiko/roastledger/internal/shared"
	"github.com/cafetiko/roastledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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
	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	summaryCache := ledger.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, summaryCache, metrics, logger, ledger.ServiceConfig{
		LowStockThresholdG: cfg.LowStockThresholdG,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService, validate)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, idemStore, auditLogger, summaryCache, metrics, logger)
	productionHandler := production.NewHandler(logger, productionService, validate)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, auditLogger, summaryCache, metrics, orders.SubstringMatcher{}, logger)
	ordersHandler := orders.NewHandler(logger, ordersService, validate)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService, validate)

	roastTimeHandler := roastimport.NewHandler(logger, roastimport.NewImporter(cfg.RoastTimeDir))

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	if _, err := jobClient.Enqueue(ctx, jobs.NewLowStockScanTask()); err != nil {
		logger.Warn("enqueue initial low stock scan", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		ProductionHandler: productionHandler,
		OrdersHandler:     ordersHandler,
		CatalogHandler:    catalogHandler,
		RoastTimeHandler:  roastTimeHandler,
		Pool:              pool,
		Metrics:           metrics,
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
