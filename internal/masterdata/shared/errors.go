package shared

import "errors"

// Sentinel errors shared by the masterdata services.
var (
	ErrNotFound      = errors.New("masterdata: not found")
	ErrDuplicate     = errors.New("masterdata: duplicate entry")
	ErrValidation    = errors.New("masterdata: validation failed")
	ErrInvalidID     = errors.New("masterdata: invalid id")
	ErrRequiredField = errors.New("masterdata: field is required")
	ErrInUse         = errors.New("masterdata: resource is in use")
)
