package shared

import "errors"

// Error kinds shared by every aggregate. Domain packages wrap these with %w
// so transports can classify failures with errors.Is.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrConflict        = errors.New("entity conflict")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
)
