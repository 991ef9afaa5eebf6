package solver

import "errors"

var (
	// ErrInvalidConfig indicates a solver configuration that cannot be used.
	ErrInvalidConfig = errors.New("solver: invalid configuration")

	// ErrKindMismatch indicates a buffer whose payload does not match its Kind.
	ErrKindMismatch = errors.New("solver: buffer payload does not match kind")

	// ErrUnknownKind indicates a Kind outside the closed set.
	ErrUnknownKind = errors.New("solver: unknown proxy kind")
)
