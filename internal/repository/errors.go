package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateDevice is returned when a device id is already taken by another owner
	ErrDuplicateDevice = errors.New("device with this id already exists")
)
