package model

import "errors"

// Error kinds surfaced to callers. Evaluator, lookup, and persistence
// failures are absorbed inside the pipeline and never reach the caller.
var (
	// ErrInvalidInput marks schema or type failures in a ProposedAction.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing verdict or agent record.
	ErrNotFound = errors.New("not found")

	// ErrDeadlineExceeded marks a per-call deadline that expired before
	// the verdict could be composed.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrRateLimited marks admission refusal on the streaming surface.
	ErrRateLimited = errors.New("rate limited")

	// ErrConfig marks invalid startup configuration. Fatal.
	ErrConfig = errors.New("invalid configuration")
)
