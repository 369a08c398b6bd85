package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status classification. Use errors.Is(err,
// remote.ErrNotFound) etc. to check.
var (
	ErrBadRequest  = errors.New("remote: bad request")
	ErrAuth        = errors.New("remote: unauthorized")
	ErrNotFound    = errors.New("remote: path not found")
	ErrConflict    = errors.New("remote: conflict")
	ErrThrottled   = errors.New("remote: throttled")
	ErrServerError = errors.New("remote: server error")
	ErrBadResponse = errors.New("remote: unexpected response shape")
)

// Error wraps a sentinel with the HTTP status code and response body for
// debugging, matching the teacher's GraphError shape.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code and response body to a
// sentinel error. Dropbox signals both "not found" and "conflict" via
// 409 with a distinguishing error body, so the body is inspected for a
// "not_found" tag.
func classifyStatus(code int, body string) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusConflict:
		if strings.Contains(body, "not_found") {
			return ErrNotFound
		}

		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
