package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call without
// attempting it. It indicates a sustained external outage, not a transient
// blip, and is logged at critical severity by callers.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// AttemptError wraps the final error of an exhausted retry sequence with
// attempt metadata for diagnostics.
type AttemptError struct {
	Category string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s operation failed after %d attempts in %s: %v",
		e.Category, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ErrAttemptTimeout marks a single attempt that exceeded the policy timeout.
var ErrAttemptTimeout = errors.New("attempt timed out")
