package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the provider answers HTTP 429.
	ErrRateLimited = errors.New("ai rate limited")
	// ErrQuotaExceeded is returned when the provider answers HTTP 402.
	ErrQuotaExceeded = errors.New("ai quota exceeded")
	// ErrUpstream covers other non-2xx statuses and transport failures.
	ErrUpstream = errors.New("ai upstream error")
	// ErrMalformedOutput means the reply could not be decoded into the expected shape.
	ErrMalformedOutput = errors.New("ai malformed output")
)

// StatusError carries the HTTP status and body of a failed provider call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ai provider status %d", e.Code)
	}
	return fmt.Sprintf("ai provider status %d: %s", e.Code, e.Body)
}

// Is lets errors.Is match the sentinel that corresponds to the status.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == 429
	case ErrQuotaExceeded:
		return e.Code == 402
	case ErrUpstream:
		return e.Code != 429 && e.Code != 402
	}
	return false
}

// FromStatus maps a provider status code to a typed error.
func FromStatus(code int, body string) error {
	return &StatusError{Code: code, Body: body}
}
