// Package syncer drains the durable record queue to the backend. Every
// locally-created time record and checkpoint verification is delivered with
// at most one in-flight attempt at a time, surviving process restarts and
// network failures.
package syncer

import (
	"errors"
	"fmt"
)

// Category represents how a backend error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: connection resets, timeouts, 5xx responses.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help until something outside
	// the engine changes. Examples: expired credentials, rejected payloads.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// NetworkError indicates the backend could not be reached at all.
type NetworkError struct {
	// Op is the operation being attempted.
	Op string
	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthError indicates the backend rejected the caller's credentials
// (a 401-equivalent).
type AuthError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth error: %s", e.Message)
}

// ServerError indicates the backend failed processing the request
// (a 5xx-equivalent).
type ServerError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Classify determines how a backend error should be handled.
func Classify(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return CategoryTransient
	}

	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return CategoryTransient
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe).
	return CategoryPermanent
}

// Retryable reports whether a later attempt might succeed without outside
// intervention.
func Retryable(err error) bool {
	return Classify(err) == CategoryTransient
}
