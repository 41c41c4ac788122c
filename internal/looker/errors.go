package looker

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel error kinds the orchestrators classify on. The REST client folds
// HTTP statuses into these; fakes return them directly.
var (
	// ErrNotFound is the 404 equivalent. Restore treats a not-found update
	// as "fall through to create".
	ErrNotFound = errors.New("looker: not found")

	// ErrRateLimited is the 429 equivalent. It triggers the limiter's
	// global slowdown in addition to the per-item retry.
	ErrRateLimited = errors.New("looker: rate limited")

	// ErrAuth is the 401/403 equivalent. It aborts the session; retrying
	// with the same credentials cannot succeed.
	ErrAuth = errors.New("looker: authentication failed")
)

// APIError carries the HTTP status and response body of a failed call.
// Server-side statuses (5xx) classify as transient.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("looker: API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited reports whether err is or wraps ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAuth reports whether err is or wraps ErrAuth.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts, and server-side 5xx responses. Rate limiting is retryable too
// but classified separately so callers can slow the limiter down.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) || IsNotFound(err) || IsAuth(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Everything else is transport-shaped: connection failures, resets,
	// and request timeouts (a deadline surfaces as a net.Error). The retry
	// layer's context bound keeps true cancellation from looping here.
	return true
}
