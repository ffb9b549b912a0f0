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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/audit"
	audithttp "github.com/odyssey-erp/backoffice/internal/audit/http"
	"github.com/odyssey-erp/backoffice/internal/debit"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := sequence.SeedExisting(ctx, pool, time.Now()); err != nil {
		return err
	}

	redisOpts := cfg.QueueRedisOpt()
	queue := asynq.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	notifier := jobs.NewQueueNotifier(queue)
	auditLogger := shared.NewAuditLogger(pool)

	supplierService := suppliers.NewService(suppliers.NewRepository(pool), auditLogger, notifier, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool))
	procurementService := procurement.NewService(
		procurement.NewRepository(pool, shared.NewApprovalRecorder()),
		supplierService, auditLogger, notifier, logger,
	)
	salesService := sales.NewService(sales.NewRepository(pool), auditLogger, notifier, logger)
	debitService := debit.NewService(debit.NewRepository(pool), salesService, auditLogger, notifier, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Database:           pool,
		SupplierHandler:    suppliers.NewHandler(logger, supplierService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		DebitHandler:       debit.NewHandler(logger, debitService),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
