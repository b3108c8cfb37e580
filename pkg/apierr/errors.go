// Package apierr classifies failures of the marketing API into kinds that
// callers and the resilience layer can act on.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind represents a classification of API errors by origin.
type Kind string

const (
	// KindAuthentication represents rejected or missing credentials (401).
	KindAuthentication Kind = "authentication"

	// KindValidation represents client-side or server-side input validation failures.
	KindValidation Kind = "validation"

	// KindRateLimit represents 429 responses.
	KindRateLimit Kind = "rate_limit"

	// KindServer represents 5xx server errors.
	KindServer Kind = "server"

	// KindNetwork represents transport failures and an open circuit.
	KindNetwork Kind = "network"

	// KindTimeout represents request timeouts.
	KindTimeout Kind = "timeout"

	// KindNotFound represents 404 responses.
	KindNotFound Kind = "not_found"

	// KindConflict represents 409 responses.
	KindConflict Kind = "conflict"

	// KindForbidden represents 403 responses.
	KindForbidden Kind = "forbidden"

	// KindClient represents any other 4xx response.
	KindClient Kind = "client"
)

// Retryable reports whether errors of this kind are transient by default.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// Common errors.
var (
	// ErrCircuitOpen is wrapped by errors returned while a circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrRetryExhausted matches any error that has been decorated with an attempt count.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Error is an API error with classification and server guidance.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string

	// RetryAfter is the wait suggested by the server, 0 if none.
	RetryAfter time.Duration

	// Attempts is the number of tries made before giving up, 0 if never retried.
	Attempts int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "mailer %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	} else {
		fmt.Fprintf(&b, "mailer %s error: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrRetryExhausted for errors carrying an attempt count.
func (e *Error) Is(target error) bool {
	return target == ErrRetryExhausted && e.Attempts > 0
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation creates a validation error. Validation errors are raised before any I/O.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Network wraps a transport failure. Deadline errors are classified as timeouts.
func Network(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "transport failure", Err: err}
}

// Timeout creates a timeout error for an operation that exceeded d.
func Timeout(operation string, d time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("%s timed out after %v", operation, d),
		Err:     context.DeadlineExceeded,
	}
}

// FromStatus classifies an HTTP status code.
func FromStatus(status int, message string, retryAfter time.Duration) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Kind:       kindForStatus(status),
		StatusCode: status,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// WithAttempts decorates err with the number of attempts made. The kind and
// status code of an *Error are preserved; any other error becomes a network error.
func WithAttempts(err error, attempts int) error {
	if err == nil {
		return nil
	}
	suffix := fmt.Sprintf(" (after %d attempts)", attempts)

	var apiErr *Error
	if errors.As(err, &apiErr) {
		decorated := *apiErr
		decorated.Message += suffix
		decorated.Attempts = attempts
		return &decorated
	}

	return &Error{
		Kind:     KindNetwork,
		Message:  err.Error() + suffix,
		Attempts: attempts,
		Err:      err,
	}
}

// KindOf returns the kind of err, or "" when err carries no classification.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if err != nil && IsNetwork(err) {
		return KindNetwork
	}
	return ""
}

// StatusCode returns the HTTP status carried by err.
func StatusCode(err error) (int, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return apiErr.StatusCode, true
	}
	return 0, false
}

// RetryAfter returns the server-suggested wait carried by err, 0 if none.
func RetryAfter(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsNetwork reports whether err is a network-class failure: transport errors,
// timeouts and an open circuit.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindNetwork || apiErr.Kind == KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
