package transfers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegisfm/aegisfm/internal/platform/httpx"
	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// Handler wires HTTP endpoints for stock transfers.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the transfers handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/complete", h.Complete)
}

func scope(w http.ResponseWriter, r *http.Request) (shared.ActorContext, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return shared.ActorContext{}, false
	}
	return actor, true
}

func mapError(err error) error {
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Errorf("%w: item %d has %.3f available, requested %.3f",
			httpx.ErrPrecondition, insufficient.ItemID, insufficient.Available, insufficient.Requested)
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound), errors.Is(err, stock.ErrNoStockRecord):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrAlreadyCompleted):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoLines),
		errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, stock.ErrInvalidLocation),
		errors.Is(err, shared.ErrNoCompany):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return err
}

type lineRequest struct {
	ItemID   int64   `json:"item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
}

type createRequest struct {
	SourceWarehouseID int64         `json:"source_warehouse_id" validate:"required"`
	DestWarehouseID   int64         `json:"dest_warehouse_id"`
	DestDeviceID      int64         `json:"dest_device_id"`
	Notes             string        `json:"notes"`
	Lines             []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	input := CreateInput{
		CompanyID:     actor.CompanyID,
		SourceID:      req.SourceWarehouseID,
		DestWarehouse: req.DestWarehouseID,
		DestDevice:    req.DestDeviceID,
		Notes:         req.Notes,
		ActorID:       actor.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	tr, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create transfer failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if raw := q.Get("warehouse_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.WarehouseID = id
		}
	}
	pagination := shared.NewPagination(q.Get("page"), q.Get("page_size"))
	filter.Limit = pagination.PageSize
	filter.Offset = pagination.Offset()

	transfers, total, err := h.service.List(r.Context(), actor.CompanyID, filter)
	if err != nil {
		h.logger.Error("list transfers failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid transfer id", httpx.ErrValidation))
		return
	}
	tr, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid transfer id", httpx.ErrValidation))
		return
	}
	tr, err := h.service.Complete(r.Context(), actor.CompanyID, id, actor.ActorID)
	if err != nil {
		h.logger.Error("complete transfer failed", "transfer_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}
