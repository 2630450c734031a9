package receiving

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
	"github.com/aegisfm/aegisfm/internal/stock"
)

// Handler wires HTTP endpoints for goods receipt.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the receiving handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.List)
	r.Post("/invoices", h.CreateInvoice)
	r.Get("/invoices/{id}", h.Show)
	r.Post("/invoices/{id}/receive", h.ReceiveAll)
	r.Post("/invoices/{id}/lines/{lineID}/receive", h.ReceiveLine)
	r.Post("/receipts", h.Receive)
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
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound), errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicateNumber):
		return fmt.Errorf("%w: %v", httpx.ErrDuplicate, err)
	case errors.Is(err, ErrOverReceive), errors.Is(err, ErrAlreadyReceived),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoLines),
		errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, shared.ErrNoCompany):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return err
}

func invoiceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid invoice id", httpx.ErrValidation)
	}
	return id, nil
}

type lineRequest struct {
	ItemID   int64   `json:"item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
}

type invoiceRequest struct {
	Number      string        `json:"number" validate:"required"`
	VendorID    int64         `json:"vendor_id"`
	InvoiceDate string        `json:"invoice_date"`
	Notes       string        `json:"notes"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	input := CreateInvoiceInput{
		CompanyID: actor.CompanyID,
		Number:    req.Number,
		VendorID:  req.VendorID,
		Notes:     req.Notes,
		ActorID:   actor.ActorID,
	}
	if req.InvoiceDate != "" {
		date, err := time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invoice_date must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		input.InvoiceDate = date
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.logger.Error("create invoice failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Status: ReceiveStatus(q.Get("status"))}
	if raw := q.Get("vendor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.VendorID = id
		}
	}
	pagination := shared.NewPagination(q.Get("page"), q.Get("page_size"))
	filter.Limit = pagination.PageSize
	filter.Offset = pagination.Offset()

	invoices, total, err := h.service.List(r.Context(), actor.CompanyID, filter)
	if err != nil {
		h.logger.Error("list invoices failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := invoiceID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type receiveLineRequest struct {
	WarehouseID int64   `json:"warehouse_id"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) ReceiveLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := invoiceID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid line id", httpx.ErrValidation))
		return
	}
	var req receiveLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entry, err := h.service.ReceiveLine(r.Context(), ReceiveLineInput{
		CompanyID:      actor.CompanyID,
		InvoiceID:      id,
		LineID:         lineID,
		WarehouseID:    req.WarehouseID,
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        actor.ActorID,
	})
	if err != nil {
		h.logger.Error("receive line failed", "invoice_id", id, "line_id", lineID, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type receiveAllRequest struct {
	WarehouseID int64 `json:"warehouse_id"`
}

func (h *Handler) ReceiveAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := invoiceID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveAllRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
			return
		}
	}
	entries, err := h.service.ReceiveAll(r.Context(), actor.CompanyID, id, req.WarehouseID, actor.ActorID)
	if err != nil {
		h.logger.Error("receive invoice failed", "invoice_id", id, "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

type receiveRequest struct {
	ItemID          int64   `json:"item_id" validate:"required"`
	WarehouseID     int64   `json:"warehouse_id"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" validate:"gte=0"`
	SourceReference string  `json:"source_reference"`
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	actor, ok := scope(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entry, err := h.service.Receive(r.Context(), ReceiveInput{
		CompanyID:       actor.CompanyID,
		ItemID:          req.ItemID,
		WarehouseID:     req.WarehouseID,
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		SourceReference: req.SourceReference,
		ActorID:         actor.ActorID,
	})
	if err != nil {
		h.logger.Error("direct receipt failed", "error", err)
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
