package items

import (
	"errors"
	"time"
)

// Item is a stockable catalogue entry. ItemNumber is unique per company.
type Item struct {
	ID           int64     `json:"id"`
	CompanyID    int64     `json:"company_id"`
	CategoryID   int64     `json:"category_id,omitempty"`
	ItemNumber   string    `json:"item_number"`
	Description  string    `json:"description"`
	Unit         string    `json:"unit"`
	UnitCost     float64   `json:"unit_cost"`
	UnitPrice    float64   `json:"unit_price"`
	MinimumStock float64   `json:"minimum_stock"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Category groups items for browsing and reporting.
type Category struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilter narrows item listings.
type ListFilter struct {
	CategoryID int64
	Search     string
	IsActive   *bool
	Limit      int
	Offset     int
}

// ErrDuplicateNumber indicates an item number already used within the company.
var ErrDuplicateNumber = errors.New("items: item number already exists")

// ErrHasStock indicates a delete attempt on an item that still holds stock.
var ErrHasStock = errors.New("items: item still holds stock")

// ErrHasHistory indicates a delete attempt on an item with ledger history.
var ErrHasHistory = errors.New("items: item has ledger history")

// ErrNotFound indicates a missing item or category.
var ErrNotFound = errors.New("items: not found")

// ErrInvalidInput indicates missing or malformed item fields.
var ErrInvalidInput = errors.New("items: invalid input")
