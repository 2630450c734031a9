package receiving

import (
	"errors"
	"time"
)

// ReceiveStatus tracks how much of an invoice has arrived.
type ReceiveStatus string

const (
	// StatusPending has no received quantity yet.
	StatusPending ReceiveStatus = "PENDING"
	// StatusPartial has some lines partially or fully received.
	StatusPartial ReceiveStatus = "PARTIAL"
	// StatusReceived has every line fully received.
	StatusReceived ReceiveStatus = "RECEIVED"
)

// Invoice is a vendor invoice awaiting goods receipt. The financial side of
// invoicing lives elsewhere; this record only drives receiving.
type Invoice struct {
	ID          int64         `json:"id"`
	CompanyID   int64         `json:"company_id"`
	Number      string        `json:"number"`
	VendorID    int64         `json:"vendor_id,omitempty"`
	InvoiceDate time.Time     `json:"invoice_date"`
	Status      ReceiveStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	CreatedBy   int64         `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Lines       []Line        `json:"lines,omitempty"`
}

// Line is one invoiced item with its running received quantity.
type Line struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	ItemID      int64   `json:"item_id"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	ReceivedQty float64 `json:"received_qty"`
}

// Remaining is the quantity still to receive on the line.
func (l Line) Remaining() float64 {
	if rem := l.Quantity - l.ReceivedQty; rem > 0 {
		return rem
	}
	return 0
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status   ReceiveStatus
	VendorID int64
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates the invoice does not exist for the tenant.
	ErrNotFound = errors.New("receiving: invoice not found")
	// ErrLineNotFound indicates the invoice line does not exist.
	ErrLineNotFound = errors.New("receiving: invoice line not found")
	// ErrOverReceive rejects receiving more than the line's remaining
	// quantity.
	ErrOverReceive = errors.New("receiving: quantity exceeds remaining")
	// ErrAlreadyReceived rejects receipts against a fully received invoice.
	ErrAlreadyReceived = errors.New("receiving: invoice fully received")
	// ErrNoLines rejects an invoice without items.
	ErrNoLines = errors.New("receiving: invoice requires at least one line")
	// ErrDuplicateNumber rejects reusing an invoice number for a vendor.
	ErrDuplicateNumber = errors.New("receiving: invoice number already exists")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("receiving: invalid input")
)
