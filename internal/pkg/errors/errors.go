package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrServiceUnavailable signals that no healthy instance of a dependency
	// could be resolved.
	ErrServiceUnavailable = errors.New("service unavailable")
)
