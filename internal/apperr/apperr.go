// Package apperr defines the error kinds that may cross the service
// boundary. Every error returned by a service is an *Error carrying one of
// these kinds; handlers translate the kind into an HTTP status without
// inspecting messages.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an error for the caller.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidInput
	KindUnavailable
)

// Sentinel errors, one per kind, for errors.Is comparisons.
var (
	ErrInternal     = errors.New("internal error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindConflict:
		return ErrConflict
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

// Error is a classified error. Message is safe to show to a client; Err
// holds the cause and is only ever logged.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

func newError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

func NotFound(op, msg string) *Error     { return newError(KindNotFound, op, msg, nil) }
func Forbidden(op, reason string) *Error { return newError(KindForbidden, op, reason, nil) }
func Conflict(op, msg string) *Error     { return newError(KindConflict, op, msg, nil) }
func Invalid(op, msg string) *Error      { return newError(KindInvalidInput, op, msg, nil) }

// Unavailable wraps a storage or broker failure the caller may retry.
func Unavailable(op string, cause error) *Error {
	return newError(KindUnavailable, op, "service temporarily unavailable", cause)
}

// Internal wraps an unexpected failure. Its message is never shown to a client.
func Internal(op string, cause error) *Error {
	return newError(KindInternal, op, "", cause)
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-visible text for err.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	if e.Message == "" {
		return e.Kind.sentinel().Error()
	}
	return e.Message
}

// Classify returns err unchanged when it is already classified, and
// otherwise wraps it as Unavailable (timeouts, broken connections) or
// Internal.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if IsTransient(err) {
		return Unavailable(op, err)
	}
	return Internal(op, err)
}

// IsTransient reports whether err looks like a timeout or a lost connection.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
