package vendors

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

type vendorRequest struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	ContactPerson   string `json:"contact_person"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Address         string `json:"address"`
	PaymentTermDays int    `json:"payment_term_days"`
	IsActive        *bool  `json:"is_active"`
}

func (req vendorRequest) toModel(companyID, id int64) Vendor {
	vendor := Vendor{
		ID:              id,
		CompanyID:       companyID,
		Code:            req.Code,
		Name:            req.Name,
		ContactPerson:   req.ContactPerson,
		Phone:           req.Phone,
		Email:           req.Email,
		Address:         req.Address,
		PaymentTermDays: req.PaymentTermDays,
		IsActive:        true,
	}
	if req.IsActive != nil {
		vendor.IsActive = *req.IsActive
	}
	return vendor
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	filters := shared.ParseListFilters(r, actor.CompanyID)
	vendors, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list vendors failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": vendors, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation))
		return
	}
	vendor, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	var req vendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	vendor, err := h.service.Create(r.Context(), req.toModel(actor.CompanyID, 0))
	if err != nil {
		h.logger.Error("create vendor failed", "error", err)
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation))
		return
	}
	var req vendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.service.Update(r.Context(), req.toModel(actor.CompanyID, id)); err != nil {
		h.logger.Error("update vendor failed", "error", err, "id", id)
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
		httpx.RespondError(w, fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation))
		return
	}
	if err := h.service.Deactivate(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, shared.HTTPError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}
