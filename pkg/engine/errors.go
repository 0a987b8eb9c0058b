package engine

import "errors"

var (
	// ErrInvalidOperation is returned (or panicked with, for the infallible
	// operator methods) when an operation is misused: a node-valued
	// exponent, operands from different graphs, or an unknown handle.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrStaleGradient is returned by BackwardStrict when a reachable node
	// still holds a gradient from an earlier pass.
	ErrStaleGradient = errors.New("stale gradient")
)
