package devices

import "time"

// Device represents a handheld terminal used by field technicians. A device
// may carry its own stock and is linked to the warehouse it restocks from.
type Device struct {
	ID             int64     `json:"id"`
	CompanyID      int64     `json:"company_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	WarehouseID    int64     `json:"warehouse_id,omitempty"`
	TechnicianName string    `json:"technician_name"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	accessKeyHash string
}
