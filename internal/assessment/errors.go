package assessment

import "errors"

var (
	// ErrNotFound: unknown test or question id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDefinition: an authoring-time invariant was violated.
	// Rejected synchronously at save time; a running session may assume
	// its underlying test is well-formed.
	ErrInvalidDefinition = errors.New("invalid test definition")
	// ErrInvalidState: operation attempted on a session in the wrong
	// lifecycle state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrConflict: protocol number allocation raced and retries are
	// exhausted. Treat as a storage outage, not a logic error.
	ErrConflict = errors.New("concurrency conflict")
)
