package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// ErrorKindTransient marks failures worth retrying (rate limits, 5xx, network).
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindFatal marks failures that will not succeed on retry.
	ErrorKindFatal ErrorKind = "fatal"
)

// ProviderError is returned by Model implementations when generation fails.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// NewProviderError classifies err by HTTP status code. A zero status is
// treated as a transport failure and therefore transient.
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       classifyStatus(statusCode),
		StatusCode: statusCode,
		Err:        err,
	}
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == 0,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return ErrorKindTransient
	default:
		return ErrorKindFatal
	}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the failure may succeed on retry.
func (e *ProviderError) Transient() bool { return e.Kind == ErrorKindTransient }

// IsTransient reports whether err wraps a transient ProviderError.
func IsTransient(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Transient()
	}

	return false
}
