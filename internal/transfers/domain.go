package transfers

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	// StatusDraft records intent; no stock has moved.
	StatusDraft Status = "DRAFT"
	// StatusCompleted has both ledger legs written.
	StatusCompleted Status = "COMPLETED"
)

// Transfer moves stock from a source warehouse to a destination warehouse or
// device. Lines are requested quantities until completion stamps the actual
// quantity and cost used.
type Transfer struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"company_id"`
	Number        string    `json:"number"`
	SourceID      int64     `json:"source_warehouse_id"`
	DestWarehouse int64     `json:"dest_warehouse_id,omitempty"`
	DestDevice    int64     `json:"dest_device_id,omitempty"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by,omitempty"`
	CompletedBy   int64     `json:"completed_by,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Lines         []Line    `json:"lines,omitempty"`
}

// Line is one item on a transfer.
type Line struct {
	ID         int64   `json:"id"`
	TransferID int64   `json:"transfer_id"`
	ItemID     int64   `json:"item_id"`
	Quantity   float64 `json:"quantity"`
	UnitCost   float64 `json:"unit_cost"`
	ActualCost float64 `json:"actual_cost,omitempty"`
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	Status      Status
	WarehouseID int64
	Limit       int
	Offset      int
}

var (
	// ErrNotFound indicates the transfer does not exist for the tenant.
	ErrNotFound = errors.New("transfers: transfer not found")
	// ErrAlreadyCompleted rejects completing a transfer twice.
	ErrAlreadyCompleted = errors.New("transfers: transfer already completed")
	// ErrNoLines rejects a transfer without items.
	ErrNoLines = errors.New("transfers: transfer requires at least one line")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("transfers: invalid input")
)
