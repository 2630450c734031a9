package stock

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeReceiveInvoice records goods received against a vendor invoice.
	TransactionTypeReceiveInvoice TransactionType = "RECEIVE_INVOICE"
	// TransactionTypeInitialStock seeds an opening balance for a new item.
	TransactionTypeInitialStock TransactionType = "INITIAL_STOCK"
	// TransactionTypeAdjustmentPlus is a manual upward correction.
	TransactionTypeAdjustmentPlus TransactionType = "ADJUSTMENT_PLUS"
	// TransactionTypeAdjustmentMinus is a manual downward correction.
	TransactionTypeAdjustmentMinus TransactionType = "ADJUSTMENT_MINUS"
	// TransactionTypeTransferOut is the outbound leg of a transfer.
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	// TransactionTypeTransferIn is the inbound leg of a transfer.
	TransactionTypeTransferIn TransactionType = "TRANSFER_IN"
	// TransactionTypeIssueWorkOrder reserves stock against a work order.
	TransactionTypeIssueWorkOrder TransactionType = "ISSUE_WORK_ORDER"
	// TransactionTypeReturnWorkOrder releases a prior issue back to stock.
	TransactionTypeReturnWorkOrder TransactionType = "RETURN_WORK_ORDER"
	// TransactionTypeCancelWorkOrder reverses issued quantities on cancellation.
	TransactionTypeCancelWorkOrder TransactionType = "CANCEL_WORK_ORDER"
)

// Prefix returns the three letter transaction number prefix.
func (t TransactionType) Prefix() string {
	if len(t) < 3 {
		return string(t)
	}
	return string(t[:3])
}

// Valid reports whether the type is one of the known movement types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeReceiveInvoice, TransactionTypeInitialStock,
		TransactionTypeAdjustmentPlus, TransactionTypeAdjustmentMinus,
		TransactionTypeTransferOut, TransactionTypeTransferIn,
		TransactionTypeIssueWorkOrder, TransactionTypeReturnWorkOrder,
		TransactionTypeCancelWorkOrder:
		return true
	}
	return false
}

// Increasing reports whether the movement raises on-hand quantity at the
// target location. Issue, return and cancel movements touch the reservation
// counter instead and are neither increasing nor decreasing here.
func (t TransactionType) Increasing() bool {
	switch t {
	case TransactionTypeReceiveInvoice, TransactionTypeInitialStock,
		TransactionTypeAdjustmentPlus, TransactionTypeTransferIn:
		return true
	}
	return false
}

// Decreasing reports whether the movement lowers on-hand quantity.
func (t TransactionType) Decreasing() bool {
	switch t {
	case TransactionTypeAdjustmentMinus, TransactionTypeTransferOut:
		return true
	}
	return false
}

// LocationRef identifies a stock location: exactly one of WarehouseID or
// DeviceID is set.
type LocationRef struct {
	WarehouseID int64
	DeviceID    int64
}

// Valid reports whether exactly one side of the reference is set.
func (r LocationRef) Valid() bool {
	return (r.WarehouseID > 0) != (r.DeviceID > 0)
}

// Zero reports whether the reference points nowhere.
func (r LocationRef) Zero() bool {
	return r.WarehouseID == 0 && r.DeviceID == 0
}

// LocationKey identifies one stock location for reconciliation: the item
// plus the warehouse or device holding it.
type LocationKey struct {
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
}

// Location models one stock balance row, keyed by item and exactly one of
// warehouse or device.
type Location struct {
	ID          int64
	CompanyID   int64
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
	OnHand      float64
	Reserved    float64
	AverageCost float64
	LastCost    float64
	UpdatedAt   time.Time
}

// Ref returns the location reference of the row.
func (l Location) Ref() LocationRef {
	return LocationRef{WarehouseID: l.WarehouseID, DeviceID: l.DeviceID}
}

// Available is the quantity free for new reservations.
func (l Location) Available() float64 {
	return l.OnHand - l.Reserved
}

// LedgerEntry is one immutable ledger row. Quantity is signed: positive for
// inbound and release movements, negative for outbound and issues.
type LedgerEntry struct {
	ID                int64
	CompanyID         int64
	TransactionNumber string
	Type              TransactionType
	ItemID            int64
	Quantity          float64
	Unit              string
	UnitCost          float64
	TotalCost         float64
	BalanceAfter      float64
	FromWarehouseID   int64
	FromDeviceID      int64
	ToWarehouseID     int64
	ToDeviceID        int64
	InvoiceID         int64
	WorkOrderID       int64
	TransferID        int64
	Notes             string
	CreatedBy         int64
	CreatedAt         time.Time
}

// Movement is the input to the engine: one stock mutation plus its ledger
// entry. Quantity is always a positive magnitude; the engine derives the sign
// from the type.
type Movement struct {
	CompanyID   int64
	ItemID      int64
	Type        TransactionType
	Quantity    float64
	UnitCost    float64
	From        LocationRef
	To          LocationRef
	InvoiceID   int64
	WorkOrderID int64
	TransferID  int64
	Notes       string
	ActorID     int64
	// Restock applies to CANCEL_WORK_ORDER only: true restores on-hand
	// (the work order was approved), false releases the reservation.
	Restock bool
}

// ItemInfo carries the item attributes the engine needs when posting.
type ItemInfo struct {
	ID           int64
	ItemNumber   string
	Description  string
	Unit         string
	UnitCost     float64
	MinimumStock float64
	Active       bool
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
	WorkOrderID int64
	Type        TransactionType
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// View is one row of the aggregated stock view per location.
type View struct {
	ItemID      int64
	ItemNumber  string
	Description string
	Unit        string
	WarehouseID int64
	DeviceID    int64
	OnHand      float64
	Reserved    float64
	Available   float64
	AverageCost float64
}

// InsufficientStockError reports an outbound movement that would overdraw a
// location.
type InsufficientStockError struct {
	ItemID    int64
	Available float64
	Requested float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for item %d: available %.3f, requested %.3f", e.ItemID, e.Available, e.Requested)
}

// ErrInvalidQuantity indicates a zero or negative movement quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidLocation indicates a movement without a usable location reference.
var ErrInvalidLocation = errors.New("stock: movement requires exactly one warehouse or device per side")

// ErrNoStockRecord indicates a movement against a location that has never
// held the item.
var ErrNoStockRecord = errors.New("stock: no stock record at location")

// ErrUnknownType indicates an unrecognised transaction type.
var ErrUnknownType = errors.New("stock: unknown transaction type")
