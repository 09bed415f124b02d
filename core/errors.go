package core

import "errors"

// Upstream errors
var (
	// ErrUpstream is returned when the test-management backend rejects or fails a request
	ErrUpstream = errors.New("upstream request failed")

	// ErrNotFound is returned when an upstream entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrMalformedPayload is returned when an upstream payload cannot be decoded at all
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// Report errors
var (
	// ErrInvalidRequest is returned when a report request is missing required input
	ErrInvalidRequest = errors.New("invalid report request")

	// ErrRequiredPullFailed wraps a failure of the first required pulls (suites, requirements)
	ErrRequiredPullFailed = errors.New("required upstream pull failed")
)
