package generation

import (
	"errors"
	"fmt"
	"time"
)

// ShapeMismatch means the backend answered but the value does not conform
// to the requested shape (malformed JSON, missing field, wrong type).
// It is permanent for the request: retrying the same prompt is a caller decision.
type ShapeMismatch struct {
	TemplateID string
	Raw        string
	Cause      error
}

func (e *ShapeMismatch) Error() string {
	return fmt.Sprintf("shape mismatch for %s: %v", e.TemplateID, e.Cause)
}

func (e *ShapeMismatch) Unwrap() error { return e.Cause }

// BackendUnavailable covers timeouts, transport failures and server errors.
// Rejected requests (auth, bad request) are also reported here with
// Permanent set, so callers do not retry them.
type BackendUnavailable struct {
	Backend   string
	Permanent bool
	Cause     error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Cause)
}

func (e *BackendUnavailable) Unwrap() error { return e.Cause }

// RateLimited means the backend refused the request for quota reasons.
type RateLimited struct {
	Backend    string
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("%s backend rate limited: %v", e.Backend, e.Cause)
}

func (e *RateLimited) Unwrap() error { return e.Cause }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var unavailable *BackendUnavailable
	if errors.As(err, &unavailable) {
		return !unavailable.Permanent
	}
	var limited *RateLimited
	return errors.As(err, &limited)
}

// IsShapeMismatch reports whether err is a ShapeMismatch.
func IsShapeMismatch(err error) bool {
	var mismatch *ShapeMismatch
	return errors.As(err, &mismatch)
}

// classifyStatus maps an HTTP-like status code from a backend SDK.
func classifyStatus(backend string, status int, cause error) error {
	switch {
	case status == 429:
		return &RateLimited{Backend: backend, Cause: cause}
	case status == 408 || status >= 500 || status == 0:
		return &BackendUnavailable{Backend: backend, Cause: cause}
	default:
		return &BackendUnavailable{Backend: backend, Permanent: true, Cause: fmt.Errorf("status %d: %w", status, cause)}
	}
}
