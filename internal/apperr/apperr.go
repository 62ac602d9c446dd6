// Package apperr defines the error kinds surfaced by household, scheduling
// and task operations, and their HTTP status mapping.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to callers; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error appends the cause unless Message already ends with its text.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	cause := e.Err.Error()
	if strings.HasSuffix(e.Message, cause) {
		return e.Message
	}
	return e.Message + ": " + cause
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) error      { return New(KindValidation, msg) }
func Unauthenticated(msg string) error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) error       { return New(KindForbidden, msg) }
func NotFound(msg string) error        { return New(KindNotFound, msg) }
func Conflict(msg string) error        { return New(KindConflict, msg) }

func Internal(msg string, err error) error {
	return Wrap(KindInternal, msg, err)
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message for err. Internal errors never
// leak their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
