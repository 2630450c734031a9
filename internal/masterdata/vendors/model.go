package vendors

import "time"

// Vendor represents a supplier the company purchases from.
type Vendor struct {
	ID              int64     `json:"id"`
	CompanyID       int64     `json:"company_id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	ContactPerson   string    `json:"contact_person"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Address         string    `json:"address"`
	PaymentTermDays int       `json:"payment_term_days"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
