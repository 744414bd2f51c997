package storage

import "errors"

// Storage errors.
var (
	// ErrInvalidTable is returned when a table cannot be stored or a stored file
	// does not have the expected layout.
	ErrInvalidTable = errors.New("invalid table")
)
