package warehouses

import "time"

// Warehouse represents a physical stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	BranchID  int64     `json:"branch_id,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsMain    bool      `json:"is_main"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
