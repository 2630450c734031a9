package shared

import "strconv"

// Pagination carries parsed page parameters for listings.
type Pagination struct {
	Page     int
	PageSize int
}

// NewPagination parses raw query values, applying defaults and a hard cap.
func NewPagination(page, pageSize string) Pagination {
	p := Pagination{Page: 1, PageSize: 20}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(pageSize); err == nil && n > 0 {
		p.PageSize = n
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
	return p
}

// Offset is the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
