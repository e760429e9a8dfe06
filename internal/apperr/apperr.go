// Package apperr is the error taxonomy shared by the core and its adapters.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthorization
	KindNotFound
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "state_conflict"
	case KindAuthorization:
		return "authorization_error"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "internal_error"
	}
}

// Error carries a kind, the failing operation and, for state conflicts,
// the actions that are currently valid.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	ValidNext []string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return newf(KindConflict, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return newf(KindAuthorization, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

// Invariant marks a defect: the enclosing transaction must abort.
func Invariant(op, format string, args ...any) *Error {
	return newf(KindInvariant, op, format, args...)
}

// WithValidNext attaches the set of currently valid next actions.
func (e *Error) WithValidNext(next ...string) *Error {
	e.ValidNext = append([]string(nil), next...)
	return e
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ValidNext returns the valid next actions carried by err, if any.
func ValidNext(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.ValidNext
	}
	return nil
}
