package devices

import (
	"errors"
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
	r.Post("/verify", h.Verify)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/rotate-key", h.RotateKey)
	r.Delete("/{id}", h.Deactivate)
}

type deviceRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	WarehouseID    int64  `json:"warehouse_id"`
	TechnicianName string `json:"technician_name"`
	IsActive       *bool  `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	filters := shared.ParseListFilters(r, actor.CompanyID)
	devices, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list devices failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"devices": devices, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid device id", httpx.ErrValidation))
		return
	}
	device, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, device)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	device, accessKey, err := h.service.Create(r.Context(), Device{
		CompanyID:      actor.CompanyID,
		Code:           req.Code,
		Name:           req.Name,
		WarehouseID:    req.WarehouseID,
		TechnicianName: req.TechnicianName,
	})
	if err != nil {
		h.logger.Error("create device failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"device": device, "access_key": accessKey})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid device id", httpx.ErrValidation))
		return
	}
	var req deviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	device := Device{
		ID:             id,
		CompanyID:      actor.CompanyID,
		Code:           req.Code,
		Name:           req.Name,
		WarehouseID:    req.WarehouseID,
		TechnicianName: req.TechnicianName,
		IsActive:       true,
	}
	if req.IsActive != nil {
		device.IsActive = *req.IsActive
	}
	if err := h.service.Update(r.Context(), device); err != nil {
		h.logger.Error("update device failed", "error", err, "id", id)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid device id", httpx.ErrValidation))
		return
	}
	key, err := h.service.RotateAccessKey(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"access_key": key})
}

type verifyRequest struct {
	Code      string `json:"code"`
	AccessKey string `json:"access_key"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	device, err := h.service.VerifyAccessKey(r.Context(), actor.CompanyID, req.Code, req.AccessKey)
	if err != nil {
		if errors.Is(err, ErrBadAccessKey) {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
			return
		}
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, device)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid device id", httpx.ErrValidation))
		return
	}
	if err := h.service.Deactivate(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}
