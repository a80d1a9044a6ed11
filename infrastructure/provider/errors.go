package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error for retry and propagation decisions.
type Kind int

// Error kinds.
const (
	// KindValidation is malformed input. Rejected immediately, never retried.
	KindValidation Kind = iota + 1
	// KindCredential is an invalid or revoked API key. Fails immediately so
	// callers can reconfigure instead of waiting out retries.
	KindCredential
	// KindTransient is a rate limit, timeout, or upstream 5xx. Retried with
	// exponential backoff.
	KindTransient
	// KindStorage is a vector store read or write failure.
	KindStorage
	// KindUnavailable is a call rejected by an open circuit breaker.
	KindUnavailable
	// KindInternal is any other provider failure.
	KindInternal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCredential:
		return "credential"
	case KindTransient:
		return "transient"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified pipeline error.
type Error struct {
	kind    Kind
	op      string
	status  int
	message string
	err     error
}

// NewError creates a classified error.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{kind: kind, op: op, message: message, err: err}
}

// NewHTTPError creates a classified error carrying an HTTP status code.
func NewHTTPError(kind Kind, op string, status int, message string, err error) *Error {
	return &Error{kind: kind, op: op, status: status, message: message, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.op, e.message, e.kind, e.status)
	}
	return fmt.Sprintf("%s: %s (%s)", e.op, e.message, e.kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Op returns the failing operation name.
func (e *Error) Op() string { return e.op }

// Status returns the HTTP status code, or 0 if none applies.
func (e *Error) Status() int { return e.status }

// KindOf returns the classification of err, or KindInternal when err carries
// no classification.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.kind
	}
	return KindInternal
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsCredential reports whether err is a credential failure.
func IsCredential(err error) bool { return KindOf(err) == KindCredential }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsPermanent reports whether err must not be retried: validation and
// credential errors propagate straight to the submitter.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindCredential:
		return true
	}
	return false
}
