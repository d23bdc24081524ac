package forge

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested unit was deleted or is inaccessible.
// Callers skip the unit and continue.
var ErrNotFound = errors.New("not found")

// RateLimitedError is returned when the provider signals rate exhaustion.
// ResetAt is the provider-supplied time at which requests may resume.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// TransientError wraps a network or server failure that survived the
// bounded retry budget. It is fatal only to the current unit of work.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
