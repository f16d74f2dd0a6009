package bridge

import "errors"

var (
	// ErrValidation is returned for malformed user op input
	ErrValidation = errors.New("invalid user op")
	// ErrNotFound is returned for unknown user op ids
	ErrNotFound = errors.New("user op not found")
	// ErrStorage wraps status persistence faults
	ErrStorage = errors.New("user op storage failure")
)
