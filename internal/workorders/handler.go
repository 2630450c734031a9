package workorders

import (
	"context"
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

// Handler wires HTTP endpoints for work orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the work order handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/complete", h.Complete)
	r.Get("/{id}/checklist", h.Checklist)
	r.Post("/{id}/checklist/{itemID}/complete", h.CompleteChecklistItem)
	r.Get("/{id}/items", h.IssuedItems)
	r.Post("/{id}/items", h.IssueItem)
	r.Post("/{id}/returns", h.ReturnItem)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/cancel", h.Cancel)
}

func scope(w http.ResponseWriter, r *http.Request) (shared.ActorContext, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return shared.ActorContext{}, false
	}
	return actor, true
}

func workOrderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid work order id", httpx.ErrValidation)
	}
	return id, nil
}

func mapError(err error) error {
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Errorf("%w: item %d has %.3f available, requested %.3f",
			httpx.ErrPrecondition, insufficient.ItemID, insufficient.Available, insufficient.Requested)
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound), errors.Is(err, stock.ErrNoStockRecord):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrAlreadyApproved), errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrNotCompleted), errors.Is(err, ErrHasMovements),
		errors.Is(err, ErrChecklistIncomplete), errors.Is(err, ErrReturnExceedsIssued):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, stock.ErrInvalidLocation), errors.Is(err, shared.ErrNoCompany):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return err
}

type createRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	DeviceID    int64    `json:"device_id"`
	BranchID    int64    `json:"branch_id"`
	AssignedTo  int64    `json:"assigned_to"`
	Checklist   []string `json:"checklist"`
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
	wo, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:   actor.CompanyID,
		Title:       req.Title,
		Description: req.Description,
		DeviceID:    req.DeviceID,
		BranchID:    req.BranchID,
		AssignedTo:  req.AssignedTo,
		Checklist:   req.Checklist,
		ActorID:     actor.ActorID,
	})
	if err != nil {
		h.logger.Error("create work order failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, wo)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
	}
	if raw := q.Get("device_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.DeviceID = id
		}
	}
	if raw := q.Get("branch_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.BranchID = id
		}
	}
	if raw := q.Get("assigned_to"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.AssignedTo = id
		}
	}
	pagination := shared.NewPagination(q.Get("page"), q.Get("page_size"))
	filter.Limit = pagination.PageSize
	filter.Offset = pagination.Offset()

	orders, total, err := h.service.List(r.Context(), actor.CompanyID, filter)
	if err != nil {
		h.logger.Error("list work orders failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"work_orders": orders, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	wo, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) Checklist(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Checklist(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"checklist": items})
}

func (h *Handler) CompleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid checklist item id", httpx.ErrValidation))
		return
	}
	if err := h.service.CompleteChecklistItem(r.Context(), actor.CompanyID, id, itemID, actor.ActorID); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"completed": true})
}

type partRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id"`
	DeviceID    int64   `json:"device_id"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	Notes       string  `json:"notes"`
}

func (h *Handler) IssueItem(w http.ResponseWriter, r *http.Request) {
	h.partMovement(w, r, h.service.IssueItem)
}

func (h *Handler) ReturnItem(w http.ResponseWriter, r *http.Request) {
	h.partMovement(w, r, h.service.ReturnItem)
}

func (h *Handler) partMovement(w http.ResponseWriter, r *http.Request, post func(context.Context, IssueInput) (stock.LedgerEntry, error)) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req partRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entry, err := post(r.Context(), IssueInput{
		CompanyID:   actor.CompanyID,
		WorkOrderID: id,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		DeviceID:    req.DeviceID,
		Quantity:    req.Quantity,
		Notes:       req.Notes,
		ActorID:     actor.ActorID,
	})
	if err != nil {
		h.logger.Error("work order part movement failed", "work_order_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) IssuedItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.IssuedItems(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Approve(r.Context(), actor.CompanyID, id, actor.ActorID); err != nil {
		h.logger.Error("approve work order failed", "work_order_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approved": true})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Complete(r.Context(), actor.CompanyID, id, actor.ActorID); err != nil {
		h.logger.Error("complete work order failed", "work_order_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"completed": true})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor.CompanyID, id, actor.ActorID); err != nil {
		h.logger.Error("delete work order failed", "work_order_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := workOrderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
			return
		}
	}
	result, err := h.service.Cancel(r.Context(), actor.CompanyID, id, actor.ActorID, req.Reason)
	if err != nil {
		h.logger.Error("cancel work order failed", "work_order_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
