package shared

import "errors"

var (
	// ErrNotFound indicates resource not found or owned by another tenant.
	ErrNotFound = errors.New("not found")
	// ErrNoCompany indicates the actor context carries no tenant.
	ErrNoCompany = errors.New("no company associated")
)
