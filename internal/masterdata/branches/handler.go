package branches

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
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Deactivate)
}

type branchRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	filters := shared.ParseListFilters(r, actor.CompanyID)
	branches, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list branches failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": branches, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid branch id", httpx.ErrValidation))
		return
	}
	branch, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	var req branchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	branch, err := h.service.Create(r.Context(), Branch{
		CompanyID: actor.CompanyID,
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		Phone:     req.Phone,
	})
	if err != nil {
		h.logger.Error("create branch failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, branch)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid branch id", httpx.ErrValidation))
		return
	}
	var req branchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	branch := Branch{
		ID:        id,
		CompanyID: actor.CompanyID,
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		Phone:     req.Phone,
		IsActive:  true,
	}
	if req.IsActive != nil {
		branch.IsActive = *req.IsActive
	}
	if err := h.service.Update(r.Context(), branch); err != nil {
		h.logger.Error("update branch failed", "error", err, "id", id)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid branch id", httpx.ErrValidation))
		return
	}
	if err := h.service.Deactivate(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}
