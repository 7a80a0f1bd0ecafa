package detect

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoImage is returned when a request has no image source.
	ErrNoImage = errors.New("detect: image required")

	// ErrNoBaseURL is returned when the HTTP backend has no base URL.
	ErrNoBaseURL = errors.New("detect: base URL required")

	// ErrBackendUnavailable is returned when the backend cannot be reached.
	ErrBackendUnavailable = errors.New("detect: backend unavailable")
)

// APIError represents an error response from a detection API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code (if provided).
	Code string

	// Backend identifies which backend returned the error.
	Backend string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("detect [%s]: API error %d (%s): %s",
			e.Backend, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("detect [%s]: API error %d: %s",
		e.Backend, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// BackendError wraps an error with backend and operation context.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("detect [%s] %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("detect [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
