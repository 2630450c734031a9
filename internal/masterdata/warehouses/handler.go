package warehouses

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
	"github.com/aegisfm/aegisfm/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/main", h.Main)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/main", h.SetMain)
	r.Delete("/{id}", h.Deactivate)
}

type warehouseRequest struct {
	BranchID int64  `json:"branch_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	IsMain   bool   `json:"is_main"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	filters := shared.ParseListFilters(r, actor.CompanyID)
	warehouses, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list warehouses failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation))
		return
	}
	warehouse, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) Main(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.Main(r.Context(), actor.CompanyID)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	warehouse, err := h.service.Create(r.Context(), Warehouse{
		CompanyID: actor.CompanyID,
		BranchID:  req.BranchID,
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		IsMain:    req.IsMain,
	})
	if err != nil {
		h.logger.Error("create warehouse failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation))
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	warehouse := Warehouse{
		ID:        id,
		CompanyID: actor.CompanyID,
		BranchID:  req.BranchID,
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		IsActive:  true,
	}
	if req.IsActive != nil {
		warehouse.IsActive = *req.IsActive
	}
	if err := h.service.Update(r.Context(), warehouse); err != nil {
		h.logger.Error("update warehouse failed", "error", err, "id", id)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) SetMain(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation))
		return
	}
	if err := h.service.SetMain(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"is_main": true})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation))
		return
	}
	if err := h.service.Deactivate(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}
