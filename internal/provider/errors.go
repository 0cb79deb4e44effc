package provider

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitedError signals that the provider is throttling the caller.
// Retried with the long backoff.
type RateLimitedError struct {
	StatusCode int // 429-equivalent when known
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider rate limited: %s", e.Message)
}

// ProviderError is a transient provider failure: network error, 5xx, timeout.
// Retried with the short backoff.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FormatError reports that the provider responded but its output failed
// schema or shape validation. Never retried by the invocation layer; the
// caller decides whether to retry the whole step.
type FormatError struct {
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("generation format error: %s", e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Textual markers some providers use instead of a clean 429.
var rateLimitMarkers = []string{
	"rate limit",
	"resource exhausted",
	"resource_exhausted",
	"too many requests",
}

// IsRateLimited reports whether err carries a rate-limit signature, either a
// typed *RateLimitedError or a textual marker in the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return strings.Contains(msg, "429")
}

// IsFormatError reports whether err is a structured-output validation error.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
