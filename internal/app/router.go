package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegisfm/aegisfm/internal/items"
	"github.com/aegisfm/aegisfm/internal/masterdata/branches"
	"github.com/aegisfm/aegisfm/internal/masterdata/devices"
	"github.com/aegisfm/aegisfm/internal/masterdata/vendors"
	"github.com/aegisfm/aegisfm/internal/masterdata/warehouses"
	"github.com/aegisfm/aegisfm/internal/observability"
	"github.com/aegisfm/aegisfm/internal/receiving"
	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/transfers"
	"github.com/aegisfm/aegisfm/internal/workorders"
	"github.com/aegisfm/aegisfm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	BranchHandler    *branches.Handler
	VendorHandler    *vendors.Handler
	WarehouseHandler *warehouses.Handler
	DeviceHandler    *devices.Handler
	ItemHandler      *items.Handler
	StockHandler     *stock.Handler
	WorkOrderHandler *workorders.Handler
	TransferHandler  *transfers.Handler
	ReceivingHandler *receiving.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Aegis defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.BranchHandler != nil {
			r.Route("/branches", params.BranchHandler.MountRoutes)
		}
		if params.VendorHandler != nil {
			r.Route("/vendors", params.VendorHandler.MountRoutes)
		}
		if params.WarehouseHandler != nil {
			r.Route("/warehouses", params.WarehouseHandler.MountRoutes)
		}
		if params.DeviceHandler != nil {
			r.Route("/devices", params.DeviceHandler.MountRoutes)
		}
		if params.ItemHandler != nil {
			r.Route("/items", params.ItemHandler.MountRoutes)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.WorkOrderHandler != nil {
			r.Route("/work-orders", params.WorkOrderHandler.MountRoutes)
		}
		if params.TransferHandler != nil {
			r.Route("/transfers", params.TransferHandler.MountRoutes)
		}
		if params.ReceivingHandler != nil {
			r.Route("/receiving", params.ReceivingHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
