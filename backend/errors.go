package backend

import (
	"fmt"
	"strings"
	"time"

	"reqtrace/core"
)

const maxErrorBody = 512

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method   string
	Endpoint string
	Code     int
	Body     string

	// RetryAfter is the backoff the backend asked for, if any
	RetryAfter time.Duration
}

func newStatusError(method, endpoint string, code int, body []byte) *StatusError {
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody] + "..."
	}
	return &StatusError{Method: method, Endpoint: endpoint, Code: code, Body: detail}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.Code, e.Body)
}

// StatusCode returns the HTTP status code
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Is matches core.ErrUpstream for every status and core.ErrNotFound for 404.
func (e *StatusError) Is(target error) bool {
	switch target {
	case core.ErrUpstream:
		return true
	case core.ErrNotFound:
		return e.Code == 404
	}
	return false
}
