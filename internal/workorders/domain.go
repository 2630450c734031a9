package workorders

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a work order.
type Status string

const (
	// StatusOpen accepts part issues and returns.
	StatusOpen Status = "OPEN"
	// StatusCompleted marks the job done in the field; still accepts
	// returns and awaits approval.
	StatusCompleted Status = "COMPLETED"
	// StatusApproved has its part claims converted into real deductions.
	StatusApproved Status = "APPROVED"
	// StatusCancelled has every claim reversed.
	StatusCancelled Status = "CANCELLED"
)

// WorkOrder is one maintenance job against a device.
type WorkOrder struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Number      string    `json:"number"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DeviceID    int64     `json:"device_id,omitempty"`
	BranchID    int64     `json:"branch_id,omitempty"`
	Status      Status    `json:"status"`
	AssignedTo  int64     `json:"assigned_to,omitempty"`
	DueDate     time.Time `json:"due_date,omitempty"`
	ApprovedBy  int64     `json:"approved_by,omitempty"`
	ApprovedAt  time.Time `json:"approved_at,omitempty"`
	CancelledBy int64     `json:"cancelled_by,omitempty"`
	CancelledAt time.Time `json:"cancelled_at,omitempty"`
	CancelNote  string    `json:"cancel_note,omitempty"`
	CreatedBy   int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChecklistItem is one task on a work order; all must be completed before
// approval.
type ChecklistItem struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	Position    int       `json:"position"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CompletedBy int64     `json:"completed_by,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// IssuedItem is the replayed net part claim for one item and source
// location.
type IssuedItem struct {
	ItemID      int64   `json:"item_id"`
	WarehouseID int64   `json:"warehouse_id,omitempty"`
	DeviceID    int64   `json:"device_id,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	TotalCost   float64 `json:"total_cost"`
}

// CancelResult reports what a cancellation reversed.
type CancelResult struct {
	ItemsReversed int  `json:"items_reversed"`
	WasApproved   bool `json:"was_approved"`
}

// ListFilter narrows work order listings.
type ListFilter struct {
	Status     Status
	DeviceID   int64
	BranchID   int64
	AssignedTo int64
	Search     string
	Limit      int
	Offset     int
}

var (
	// ErrNotFound indicates the work order does not exist for the tenant.
	ErrNotFound = errors.New("workorders: work order not found")
	// ErrAlreadyApproved rejects mutations of an approved work order.
	ErrAlreadyApproved = errors.New("workorders: work order already approved")
	// ErrAlreadyCancelled rejects operations on a cancelled work order.
	ErrAlreadyCancelled = errors.New("workorders: work order already cancelled")
	// ErrNotCompleted blocks approval of a work order still open in the
	// field.
	ErrNotCompleted = errors.New("workorders: work order not completed")
	// ErrHasMovements refuses deleting a work order with ledger history.
	ErrHasMovements = errors.New("workorders: work order has stock movements")
	// ErrChecklistIncomplete blocks approval while checklist items remain
	// open.
	ErrChecklistIncomplete = errors.New("workorders: checklist incomplete")
	// ErrReturnExceedsIssued rejects returning more than the net issued
	// quantity.
	ErrReturnExceedsIssued = errors.New("workorders: return exceeds issued quantity")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("workorders: invalid input")
)
