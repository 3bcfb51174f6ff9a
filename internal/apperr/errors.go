// Package apperr holds the error taxonomy shared by every service.
//
// Services return an *Error whose Kind is one of the sentinels below; the HTTP layer maps the
// sentinel to a status code with errors.Is and shows Message to the caller. Anything that does
// not unwrap to a sentinel is treated as a store failure and never shown verbatim.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Error is a classified, client-safe error.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Unauthenticated(msg string) error {
	return &Error{Kind: ErrUnauthenticated, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

// Invalid reports a validation failure on a single request field.
func Invalid(field, msg string) error {
	return &Error{Kind: ErrValidation, Field: field, Message: msg}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Classified reports whether err carries one of the client-facing kinds.
func Classified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
