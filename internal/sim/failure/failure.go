// Package failure classifies errors raised while executing commands and
// events, so callers can decide between reject, skip, retry and abort.
package failure

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	// KindValidation rejects a command before any state change.
	KindValidation Kind = iota + 1
	// KindMissing means an id carried by an event no longer resolves.
	KindMissing
	// KindStore is a transient persistence error.
	KindStore
	// KindFatal aborts the process.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMissing:
		return "reference_missing"
	case KindStore:
		return "store"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a failure kind and a wire code for the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrMissing    = &Error{Kind: KindMissing}
	ErrStore      = &Error{Kind: KindStore}
	ErrFatal      = &Error{Kind: KindFatal}
)

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Missing(code, format string, args ...any) *Error {
	return &Error{Kind: KindMissing, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Store wraps cause unless it is already classified.
func Store(msg string, cause error) error {
	if cause == nil {
		return nil
	}
	var fe *Error
	if errors.As(cause, &fe) {
		return cause
	}
	return &Error{Kind: KindStore, Code: "E_INTERNAL", Message: msg, Cause: cause}
}

func Fatal(msg string, cause error) *Error {
	return &Error{Kind: KindFatal, Code: "E_INTERNAL", Message: msg, Cause: cause}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors count as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindStore
}

// CodeOf returns the wire code carried by err, or E_INTERNAL.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Code != "" {
		return fe.Code
	}
	return "E_INTERNAL"
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsMissing(err error) bool    { return errors.Is(err, ErrMissing) }
func IsStore(err error) bool      { return errors.Is(err, ErrStore) }
func IsFatal(err error) bool      { return errors.Is(err, ErrFatal) }
