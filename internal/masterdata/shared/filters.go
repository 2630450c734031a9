package shared

import (
	"net/http"
	"strconv"
)

const (
	// Default pagination
	DefaultPage  = 1
	DefaultLimit = 20

	// Sort directions
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list filters. CompanyID is always set from
// the request scope; entity specific filters are optional.
type ListFilters struct {
	CompanyID int64
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortDir   string
	IsActive  *bool

	// Entity specific filters
	BranchID    *int64
	WarehouseID *int64
}

// Offset converts page and limit into a row offset.
func (f ListFilters) Offset() int {
	page := f.Page
	if page < 1 {
		page = DefaultPage
	}
	return (page - 1) * f.Limit
}

// ParseListFilters reads standard list parameters from the request query.
func ParseListFilters(r *http.Request, companyID int64) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		CompanyID: companyID,
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		Search:    q.Get("search"),
		SortBy:    q.Get("sort"),
		SortDir:   q.Get("dir"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 100 {
		filters.Limit = limit
	}
	if raw := q.Get("is_active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}
	if raw := q.Get("branch_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.BranchID = &id
		}
	}
	if raw := q.Get("warehouse_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.WarehouseID = &id
		}
	}
	return filters
}

// SortOrder builds a safe ORDER BY expression from whitelisted columns.
func SortOrder(sortBy, sortDir string, allowed map[string]string, fallback string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = fallback
	}
	if sortDir == SortDesc {
		return column + " DESC"
	}
	return column + " ASC"
}
