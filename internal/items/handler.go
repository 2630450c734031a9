package items

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
)

// Handler wires HTTP endpoints for the item catalogue.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the items handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/categories", h.Categories)
	r.Post("/categories", h.CreateCategory)
	r.Put("/categories/{id}", h.UpdateCategory)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func scope(w http.ResponseWriter, r *http.Request) (shared.ActorContext, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return shared.ActorContext{}, false
	}
	return actor, true
}

type initialStockRequest struct {
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
}

type itemRequest struct {
	CategoryID   int64                `json:"category_id"`
	ItemNumber   string               `json:"item_number" validate:"required"`
	Description  string               `json:"description"`
	Unit         string               `json:"unit" validate:"required"`
	UnitCost     float64              `json:"unit_cost" validate:"gte=0"`
	UnitPrice    float64              `json:"unit_price" validate:"gte=0"`
	MinimumStock float64              `json:"minimum_stock" validate:"gte=0"`
	InitialStock *initialStockRequest `json:"initial_stock,omitempty"`
	IsActive     *bool                `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	if raw := q.Get("category_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.CategoryID = id
		}
	}
	if raw := q.Get("is_active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}
	pagination := shared.NewPagination(q.Get("page"), q.Get("page_size"))
	filter.Limit = pagination.PageSize
	filter.Offset = pagination.Offset()

	items, total, err := h.service.List(r.Context(), actor.CompanyID, filter)
	if err != nil {
		h.logger.Error("list items failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	item, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	input := CreateItemInput{
		CompanyID:    actor.CompanyID,
		CategoryID:   req.CategoryID,
		ItemNumber:   req.ItemNumber,
		Description:  req.Description,
		Unit:         req.Unit,
		UnitCost:     req.UnitCost,
		UnitPrice:    req.UnitPrice,
		MinimumStock: req.MinimumStock,
		ActorID:      actor.ActorID,
	}
	if req.InitialStock != nil {
		input.InitialStock = &InitialStockInput{
			WarehouseID: req.InitialStock.WarehouseID,
			Quantity:    req.InitialStock.Quantity,
			UnitCost:    req.InitialStock.UnitCost,
		}
	}
	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.logger.Error("create item failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	item := Item{
		ID:           id,
		CompanyID:    actor.CompanyID,
		CategoryID:   req.CategoryID,
		Description:  req.Description,
		Unit:         req.Unit,
		UnitCost:     req.UnitCost,
		UnitPrice:    req.UnitPrice,
		MinimumStock: req.MinimumStock,
		IsActive:     true,
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := h.service.Update(r.Context(), item); err != nil {
		h.logger.Error("update item failed", "error", err, "id", id)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	if err := h.service.Delete(r.Context(), actor.CompanyID, id, actor.ActorID); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	categories, err := h.service.Categories(r.Context(), actor.CompanyID)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	category, err := h.service.CreateCategory(r.Context(), Category{
		CompanyID:   actor.CompanyID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid category id", httpx.ErrValidation))
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	category := Category{
		ID:          id,
		CompanyID:   actor.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	if err := h.service.UpdateCategory(r.Context(), category); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicateNumber):
		return fmt.Errorf("%w: %v", httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidInput):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, ErrHasStock), errors.Is(err, ErrHasHistory):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	}
	return err
}
