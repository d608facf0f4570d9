package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrCancelled marks a user-initiated abort. It is informational, not a failure.
	ErrCancelled = errors.New("generation cancelled")
	// ErrEmptyPrompt rejects blank submissions before any session is created.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrProjectNotFound is returned by the project store for unknown IDs.
	ErrProjectNotFound = errors.New("project not found")
)

// TransportError reports a failed exchange with the chat-completion endpoint.
type TransportError struct {
	HTTPStatus    int
	ServerMessage string
	Err           error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error")
	if e.HTTPStatus > 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.HTTPStatus)
	}
	switch {
	case e.ServerMessage != "":
		fmt.Fprintf(&b, ": %s", e.ServerMessage)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.HTTPStatus > 0:
		fmt.Fprintf(&b, ": %s", http.StatusText(e.HTTPStatus))
	default:
		b.WriteString(": network failure")
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QuotaExceededError is returned when the provider answers HTTP 429.
type QuotaExceededError struct {
	ServerMessage string
}

func (e *QuotaExceededError) Error() string {
	if e.ServerMessage != "" {
		return "quota exceeded, try again later: " + e.ServerMessage
	}
	return "quota exceeded, try again later"
}

// MissingFieldError is returned when a finished generation populated none of
// the expected code fields.
type MissingFieldError struct {
	Missing []CodeField
}

func (e *MissingFieldError) Error() string {
	return "generation produced no usable code"
}

// IsQuotaExceeded reports whether err wraps a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var quota *QuotaExceededError
	return errors.As(err, &quota)
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

// IsMissingField reports whether err wraps a MissingFieldError.
func IsMissingField(err error) bool {
	var missing *MissingFieldError
	return errors.As(err, &missing)
}

// ErrorKind classifies an error for logs, metrics and API payloads.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case IsQuotaExceeded(err):
		return "quota_exceeded"
	case IsTransport(err):
		return "transport"
	case IsMissingField(err):
		return "missing_field"
	case errors.Is(err, ErrEmptyPrompt):
		return "invalid_request"
	default:
		return "internal"
	}
}
