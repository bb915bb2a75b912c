package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// InvalidStateError is returned for heartbeat or end calls against a
// session that is missing, owned by someone else, or already closed.
type InvalidStateError struct{ Message string }

func (e *InvalidStateError) Error() string { return e.Message }

// ResourceReleaseError wraps a failed media handle release. It is logged by
// the session service and never returned to callers.
type ResourceReleaseError struct {
	Handle string
	Err    error
}

func (e *ResourceReleaseError) Error() string {
	return fmt.Sprintf("release media handle: %v", e.Err)
}

func (e *ResourceReleaseError) Unwrap() error { return e.Err }
