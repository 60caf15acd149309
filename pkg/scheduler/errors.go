package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrShutdown is returned for requests rejected or force-failed because the
// scheduler is draining.
var ErrShutdown = errors.New("scheduler is shutting down")

// TimeoutError is returned when a request's pending timeout elapses before
// the request is admitted for execution.
type TimeoutError struct {
	RequestID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s while queued", e.RequestID, e.Timeout)
}

// IsTimeout reports whether err is a pending-timeout failure
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ValidationError represents an invalid scheduler parameter
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}
