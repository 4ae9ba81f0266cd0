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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sitechain-erp/sitechain-erp/internal/ap"
	"github.com/sitechain-erp/sitechain-erp/internal/app"
	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
	"github.com/sitechain-erp/sitechain-erp/internal/masterdata"
	"github.com/sitechain-erp/sitechain-erp/internal/observability"
	"github.com/sitechain-erp/sitechain-erp/internal/platform/db"
	"github.com/sitechain-erp/sitechain-erp/internal/procurement"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
	"github.com/sitechain-erp/sitechain-erp/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	refs := shared.NewReferenceChecker(pool)
	codes := shared.NewSequenceCodes(redisClient, cfg.SequencePrefix)
	metrics := observability.NewMetrics()

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataService := masterdata.NewService(masterdataRepo, codes, auditLogger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, refs, metrics)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	supplierRepo := ap.NewRepository(pool)
	supplierLedger := ap.NewLedger(supplierRepo, auditLogger, metrics)
	supplierHandler := ap.NewHandler(logger, supplierLedger)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(
		procurementRepo,
		inventoryService,
		supplierLedger,
		codes,
		auditLogger,
		refs,
		procurement.Config{PostOnComplete: cfg.ReceiptPostOnComplete},
	)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	// Receipt verification is the only path that stocks inventory from a
	// purchase, and it must refuse items whose requirement request never
	// reached APPROVED. Late-bound to avoid a construction cycle.
	inventoryService.SetMrrGate(procurementService)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	procurementService.SetNotifier(jobs.NewSupplierNotifier(jobsClient))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		MasterDataHandler:  masterdataHandler,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		SupplierHandler:    supplierHandler,
		Metrics:            metrics,
		Idempotency:        idempotencyStore,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
