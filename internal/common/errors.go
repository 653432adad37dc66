package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Version errors
	ErrVersionNotFound    = errors.New("version not found")
	ErrNoVersionHistory   = errors.New("no versions found for this entity")
	ErrVersionConflict    = errors.New("version number conflict")
	ErrInvalidStatus      = errors.New("invalid version status")
	ErrInvalidEntityType  = errors.New("invalid entity type")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
