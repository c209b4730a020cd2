package core

import "errors"

// Error kinds returned at the engine boundary. Everything else is a bug.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrCapacity     = errors.New("job queue at capacity")
	ErrConflict     = errors.New("concurrent mutation conflict")
	ErrPersistence  = errors.New("persistence failure")
)
