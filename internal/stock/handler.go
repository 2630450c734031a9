package stock

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegisfm/aegisfm/internal/platform/httpx"
	"github.com/aegisfm/aegisfm/internal/shared"
)

// Handler wires HTTP endpoints for stock views, the ledger and manual
// adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{itemID}", h.handleItemStock)
	r.Get("/warehouses/{warehouseID}", h.handleWarehouseStock)
	r.Get("/devices/{deviceID}", h.handleDeviceStock)
	r.Get("/ledger", h.handleLedger)
	r.Post("/adjustments", h.handleAdjust)
}

type locationResponse struct {
	WarehouseID int64   `json:"warehouse_id,omitempty"`
	DeviceID    int64   `json:"device_id,omitempty"`
	OnHand      float64 `json:"quantity_on_hand"`
	Reserved    float64 `json:"quantity_reserved"`
	Available   float64 `json:"quantity_available"`
	AverageCost float64 `json:"average_cost"`
	LastCost    float64 `json:"last_cost"`
}

func (h *Handler) handleItemStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	locations, err := h.service.ItemStock(r.Context(), actor.CompanyID, itemID)
	if err != nil {
		h.logger.Error("item stock", slog.Any("error", err), slog.Int64("item_id", itemID))
		httpx.RespondError(w, err)
		return
	}
	out := make([]locationResponse, 0, len(locations))
	for _, loc := range locations {
		out = append(out, locationResponse{
			WarehouseID: loc.WarehouseID,
			DeviceID:    loc.DeviceID,
			OnHand:      loc.OnHand,
			Reserved:    loc.Reserved,
			Available:   loc.Available(),
			AverageCost: loc.AverageCost,
			LastCost:    loc.LastCost,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "locations": out})
}

func (h *Handler) handleWarehouseStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return
	}
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation))
		return
	}
	views, err := h.service.WarehouseStock(r.Context(), actor.CompanyID, warehouseID)
	if err != nil {
		h.logger.Error("warehouse stock", slog.Any("error", err), slog.Int64("warehouse_id", warehouseID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouse_id": warehouseID, "stock": views})
}

func (h *Handler) handleDeviceStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return
	}
	deviceID, err := strconv.ParseInt(chi.URLParam(r, "deviceID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid device id", httpx.ErrValidation))
		return
	}
	views, err := h.service.DeviceStock(r.Context(), actor.CompanyID, deviceID)
	if err != nil {
		h.logger.Error("device stock", slog.Any("error", err), slog.Int64("device_id", deviceID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"device_id": deviceID, "stock": views})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return
	}
	filter, err := parseLedgerFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, total, err := h.service.Ledger(r.Context(), actor.CompanyID, filter)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total, "limit": filter.Limit, "offset": filter.Offset})
}

type adjustRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id"`
	DeviceID    int64   `json:"device_id"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
	Increase    bool    `json:"increase"`
	Notes       string  `json:"notes"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entry, err := h.service.Adjust(r.Context(), AdjustInput{
		CompanyID:      actor.CompanyID,
		ItemID:         req.ItemID,
		Location:       LocationRef{WarehouseID: req.WarehouseID, DeviceID: req.DeviceID},
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		Increase:       req.Increase,
		Notes:          req.Notes,
		ActorID:        actor.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, mapEngineError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// mapEngineError folds engine errors into the shared HTTP error taxonomy.
func mapEngineError(err error) error {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidLocation), errors.Is(err, ErrUnknownType):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, ErrNoStockRecord):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	return err
}

func parseLedgerFilter(r *http.Request) (LedgerFilter, error) {
	q := r.URL.Query()
	filter := LedgerFilter{Limit: 50}
	parseID := func(name string, dst *int64) error {
		raw := q.Get(name)
		if raw == "" {
			return nil
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
		}
		*dst = id
		return nil
	}
	if err := parseID("item_id", &filter.ItemID); err != nil {
		return LedgerFilter{}, err
	}
	if err := parseID("warehouse_id", &filter.WarehouseID); err != nil {
		return LedgerFilter{}, err
	}
	if err := parseID("device_id", &filter.DeviceID); err != nil {
		return LedgerFilter{}, err
	}
	if err := parseID("work_order_id", &filter.WorkOrderID); err != nil {
		return LedgerFilter{}, err
	}
	if raw := q.Get("type"); raw != "" {
		t := TransactionType(raw)
		if !t.Valid() {
			return LedgerFilter{}, fmt.Errorf("%w: invalid transaction type", httpx.ErrValidation)
		}
		filter.Type = t
	}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return LedgerFilter{}, fmt.Errorf("%w: invalid %s date", httpx.ErrValidation, name)
			}
			if name == "to" {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			*dst = t
		}
	}
	pagination := shared.NewPagination(q.Get("page"), q.Get("page_size"))
	filter.Limit = pagination.PageSize
	filter.Offset = pagination.Offset()
	return filter, nil
}
