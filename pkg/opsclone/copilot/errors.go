package copilot

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable marks a failure of the document store or the
	// completion service. The pipeline recovers from it with degraded output.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedModelOutput marks a completion that could not be parsed.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrDeliveryFailure marks a task that the webhook did not accept.
	ErrDeliveryFailure = errors.New("delivery failure")

	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError rejects a request before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
