package hooks

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors so callers can react without string
// matching.
type ErrorKind string

const (
	// KindInput marks malformed or incomplete host input JSON
	KindInput ErrorKind = "input"

	// KindValidation marks context or plugin-config shape violations
	KindValidation ErrorKind = "validation"

	// KindExecution marks a handler that returned or raised an error
	KindExecution ErrorKind = "execution"

	// KindTimeout marks a handler that exceeded its time budget
	KindTimeout ErrorKind = "timeout"

	// KindConfiguration marks a malformed or schema-invalid config file
	KindConfiguration ErrorKind = "configuration"

	// KindDiscovery marks a plugin file that failed to load; collected,
	// never fatal to the scan
	KindDiscovery ErrorKind = "discovery"
)

// Error is the engine's error type. Every error crossing a package
// boundary carries a kind and wraps its cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, &Error{Kind: KindTimeout}) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an engine error of the given kind.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func inputErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Msg: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind of err, or "" if err is not an engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a timeout-kind engine error.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}
