package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrInvalidID     = errors.New("domain: invalid id")
	ErrInvalidStatus = errors.New("domain: invalid task status")
	// ErrInvalidPriority is returned for a priority outside LOW through URGENT.
	ErrInvalidPriority = errors.New("domain: invalid task priority")
)
