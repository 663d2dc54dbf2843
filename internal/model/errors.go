package model

import "errors"

// Error kinds returned by the data store. Wrapped errors carry detail;
// callers classify with errors.Is.
var (
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write would violate a uniqueness or reference
	// constraint, e.g. a duplicate folder path or a second latest version.
	ErrConflict = errors.New("conflict")
	// ErrInvalid means the request itself is malformed.
	ErrInvalid = errors.New("invalid argument")
)
