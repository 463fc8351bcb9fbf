package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("completion service not configured")

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("no response from model")

// ErrorKind classifies API errors for retry decisions.
type ErrorKind int

const (
	ErrorRetryable  ErrorKind = iota // transient 5xx
	ErrorRateLimit                   // 429
	ErrorOverloaded                  // 529 or "overloaded" in body
	ErrorTimeout                     // request timeout
	ErrorAuth                        // 401, 403
	ErrorBilling                     // 402 or quota exhausted
	ErrorContext                     // context_length_exceeded
	ErrorBadRequest                  // 400
	ErrorFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorRetryable:
		return "retryable"
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorOverloaded:
		return "overloaded"
	case ErrorTimeout:
		return "timeout"
	case ErrorAuth:
		return "auth"
	case ErrorBilling:
		return "billing"
	case ErrorContext:
		return "context"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether the kind warrants another attempt.
func (k ErrorKind) Retryable() bool {
	return k == ErrorRetryable || k == ErrorRateLimit || k == ErrorOverloaded || k == ErrorTimeout
}

// APIError captures a non-200 response from the completion service.
type APIError struct {
	StatusCode int
	Body       string
	Model      string
}

func (e *APIError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: API returned %d: %s", e.Model, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("API returned %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// Kind classifies the error.
func (e *APIError) Kind() ErrorKind {
	return classify(e.StatusCode, e.Body)
}

// classify determines the error kind from status code and response body.
func classify(statusCode int, body string) ErrorKind {
	lower := strings.ToLower(body)

	if strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "maximum context length") {
		return ErrorContext
	}

	if statusCode == 402 ||
		strings.Contains(lower, "billing") ||
		strings.Contains(lower, "insufficient_quota") {
		return ErrorBilling
	}

	if statusCode == 429 ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") {
		return ErrorRateLimit
	}

	if statusCode == 529 || strings.Contains(lower, "overloaded") {
		return ErrorOverloaded
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return ErrorTimeout
	}

	switch statusCode {
	case 400:
		return ErrorBadRequest
	case 401, 403:
		return ErrorAuth
	default:
		if statusCode >= 500 {
			return ErrorRetryable
		}
		return ErrorFatal
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
