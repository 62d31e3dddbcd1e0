package loans

import "errors"

// Lifecycle errors surfaced synchronously to the caller. None is retried.
var (
	ErrAlreadyReturned = errors.New("loan is already returned")
	ErrAlreadyOverdue  = errors.New("loan is already overdue")
	ErrInvalidInput    = errors.New("invalid input")
)
