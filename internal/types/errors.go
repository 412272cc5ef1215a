package types

import "errors"

// Error taxonomy shared by the store, queue, and HTTP layer.
// Wrap these with fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidState  = errors.New("invalid state")
	ErrUpstream      = errors.New("upstream failure")
	ErrStorage       = errors.New("storage failure")
	ErrAlreadyExists = errors.New("already exists")
)
