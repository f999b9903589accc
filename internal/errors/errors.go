// Package errors provides the error taxonomy for cleaniit.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure class. All of them are fatal.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConnection      = errors.New("connection error")
	ErrDataShape       = errors.New("unexpected data shape")
	ErrActuation       = errors.New("actuation error")
)

// Error attaches a failure class to an underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err under kind. err may be nil.
func Wrap(kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Invalid builds an ErrInvalidArgument error from a format string.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArgument):
		return 2
	default:
		return 1
	}
}
