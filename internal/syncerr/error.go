// Package syncerr defines the error kinds returned by the branch
// synchronization.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError is returned when a required input is missing or invalid.
// It is returned before any request to GitHub was sent.
type ConfigurationError struct {
	// Input is the name of the offending input.
	Input string
	// Reason describes the problem, when empty the input is missing.
	Reason string
}

func NewMissingInputError(input string) *ConfigurationError {
	return &ConfigurationError{Input: input}
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("input required and not supplied: %s", e.Input)
	}

	return fmt.Sprintf("invalid input %s: %s", e.Input, e.Reason)
}

// HostingError wraps a failed GitHub API operation.
type HostingError struct {
	// Op is the name of the API operation, e.g. "get_branch".
	Op string
	// StatusCode is the HTTP status code of the response, 0 if no
	// response was received.
	StatusCode int
	// Err is the wrapped original error
	Err error
}

func NewHostingError(op string, statusCode int, err error) *HostingError {
	return &HostingError{
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

func (e *HostingError) Unwrap() error {
	return e.Err
}

func (e *HostingError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github %s failed: %s", e.Op, e.Err)
	}

	return fmt.Sprintf("github %s failed (http status %d): %s", e.Op, e.StatusCode, e.Err)
}

// IsNotFound returns true if err wraps a HostingError for a 404 response.
func IsNotFound(err error) bool {
	var hostingErr *HostingError
	if errors.As(err, &hostingErr) {
		return hostingErr.StatusCode == http.StatusNotFound
	}

	return false
}
