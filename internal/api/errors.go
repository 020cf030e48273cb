package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a transport failure into the categories callers act on.
type Kind string

const (
	// KindValidation marks user-fixable input errors with field messages.
	KindValidation Kind = "validation"
	// KindConflict marks duplicate or already-exists failures.
	KindConflict Kind = "conflict"
	// KindRateLimited marks server-enforced throttling; advisory retry-after
	// may be attached.
	KindRateLimited Kind = "rate_limited"
	// KindNotFound marks terminal missing-resource failures that must never
	// be retried.
	KindNotFound Kind = "not_found"
	// KindNetwork marks failures where no response was received.
	KindNetwork Kind = "network"
	// KindUnknown wraps any unrecognized failure shape.
	KindUnknown Kind = "unknown"
)

// Error is the single failure shape every layer above the transport sees.
// The cache and mutation coordinator never inspect transport internals.
type Error struct {
	Kind       Kind
	Status     int
	Message    string
	Fields     map[string]string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the raw cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsNotFound reports whether err is a terminal not-found failure.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsValidation reports whether err carries field-level validation messages.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsConflict reports whether err is a duplicate/already-exists failure.
func IsConflict(err error) bool { return kindOf(err) == KindConflict }

// IsRateLimited reports whether the server rejected the call for throttling.
func IsRateLimited(err error) bool { return kindOf(err) == KindRateLimited }

// IsNetwork reports whether no response was received at all.
func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

func kindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// errorBody is the structured error envelope the platform API returns.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// normalizeError converts a non-2xx response into the shared Error shape.
// The server's structured body wins when present; otherwise a generic
// message derived from the status is used.
func normalizeError(resp *http.Response, body []byte) *Error {
	parsed := errorBody{}
	if len(body) > 0 {
		// Best effort: an unparseable body still yields a usable error.
		_ = json.Unmarshal(body, &parsed)
	}
	message := parsed.Message
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	apiErr := &Error{
		Status:  resp.StatusCode,
		Message: message,
		Fields:  parsed.Errors,
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case resp.StatusCode == http.StatusConflict:
		apiErr.Kind = KindConflict
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		apiErr.Kind = KindValidation
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		apiErr.Kind = KindUnknown
	}
	return apiErr
}

// networkError wraps a failure where the request never produced a response.
func networkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "no response received",
		cause:   err,
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
