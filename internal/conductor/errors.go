package conductor

import "fmt"

// ClientClosedError is returned by every typed entry point once the
// conductor has transitioned to Closed, whether that happened via an
// explicit Close or a zombie-detected InterServiceTimeout.
type ClientClosedError struct{}

func (*ClientClosedError) Error() string { return "client conductor is closed" }

// RegistrationError wraps a driver-reported failure for a specific
// add/remove command, keyed by the correlation id the caller was
// waiting on.
type RegistrationError struct {
	CorrelationID int64
	Code          int32
	Message       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed (correlation %d, code %d): %s", e.CorrelationID, e.Code, e.Message)
}

// InterServiceTimeoutError is raised when the application thread hasn't
// driven doWork for longer than the configured inter-service timeout.
// The conductor treats this as a dead client and closes every open
// registration before surfacing it (spec.md §4.5).
type InterServiceTimeoutError struct {
	ElapsedNanos int64
	LimitNanos   int64
}

func (e *InterServiceTimeoutError) Error() string {
	return fmt.Sprintf("inter-service timeout: %dns since last doWork (limit %dns)", e.ElapsedNanos, e.LimitNanos)
}
