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

	"github.com/aegisfm/aegisfm/internal/app"
	"github.com/aegisfm/aegisfm/internal/items"
	"github.com/aegisfm/aegisfm/internal/masterdata/branches"
	"github.com/aegisfm/aegisfm/internal/masterdata/devices"
	"github.com/aegisfm/aegisfm/internal/masterdata/vendors"
	"github.com/aegisfm/aegisfm/internal/masterdata/warehouses"
	"github.com/aegisfm/aegisfm/internal/observability"
	"github.com/aegisfm/aegisfm/internal/platform/cache"
	"github.com/aegisfm/aegisfm/internal/platform/db"
	"github.com/aegisfm/aegisfm/internal/receiving"
	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/transfers"
	"github.com/aegisfm/aegisfm/internal/workorders"
	"github.com/aegisfm/aegisfm/jobs"
)

// mainWarehouseResolver adapts the warehouses service to the receiving port.
type mainWarehouseResolver struct {
	svc *warehouses.Service
}

func (r mainWarehouseResolver) MainWarehouse(ctx context.Context, companyID int64) (int64, error) {
	wh, err := r.svc.Main(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return wh.ID, nil
}

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	stockRepo := stock.NewRepository(dbpool)
	stockViews := stock.NewViewCache(redisClient, cfg.StockViewTTL)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, stockViews, metrics)
	stockHandler := stock.NewHandler(logger, stockService)

	itemRepo := items.NewRepository(dbpool)
	itemService := items.NewService(itemRepo, auditLogger, stockService)
	itemHandler := items.NewHandler(logger, itemService)

	branchService := branches.NewService(branches.NewRepository(dbpool))
	branchHandler := branches.NewHandler(logger, branchService)
	vendorService := vendors.NewService(vendors.NewRepository(dbpool))
	vendorHandler := vendors.NewHandler(logger, vendorService)
	warehouseService := warehouses.NewService(warehouses.NewRepository(dbpool))
	warehouseHandler := warehouses.NewHandler(logger, warehouseService)
	deviceService := devices.NewService(devices.NewRepository(dbpool))
	deviceHandler := devices.NewHandler(logger, deviceService)

	workOrderRepo := workorders.NewRepository(dbpool)
	workOrderService := workorders.NewService(workOrderRepo, auditLogger, stockService)
	workOrderHandler := workorders.NewHandler(logger, workOrderService)

	transferRepo := transfers.NewRepository(dbpool)
	transferService := transfers.NewService(transferRepo, auditLogger, stockService)
	transferHandler := transfers.NewHandler(logger, transferService)

	receivingRepo := receiving.NewRepository(dbpool)
	receivingService := receiving.NewService(
		receivingRepo,
		mainWarehouseResolver{svc: warehouseService},
		auditLogger,
		idempotencyStore,
		stockService,
	)
	receivingHandler := receiving.NewHandler(logger, receivingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		BranchHandler:    branchHandler,
		VendorHandler:    vendorHandler,
		WarehouseHandler: warehouseHandler,
		DeviceHandler:    deviceHandler,
		ItemHandler:      itemHandler,
		StockHandler:     stockHandler,
		WorkOrderHandler: workOrderHandler,
		TransferHandler:  transferHandler,
		ReceivingHandler: receivingHandler,
		JobHandler:       jobHandler,
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
