// Package minererr defines the tagged error kinds shared across the
// mining engine and its Stratum collaborator.
package minererr

import "errors"

// Kind classifies an Error so callers can branch on failure category
// without string matching.
type Kind string

const (
	InvalidParam     Kind = "invalid_param"
	Transport        Kind = "transport"
	Protocol         Kind = "protocol"
	AuthRejected     Kind = "auth_rejected"
	Timeout          Kind = "timeout"
	CapacityExceeded Kind = "capacity_exceeded"
)

// Error is a tagged error carrying which field or state transition
// failed, plus the underlying cause when there is one.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += "[" + e.Field + "]"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Field builds an Error that names the offending field.
func Field(kind Kind, field, msg string) *Error {
	return &Error{Kind: kind, Field: field, Msg: msg}
}

// Wrap builds an Error that wraps a lower-level cause.
func Wrap(kind Kind, field string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Cause: cause}
}

// Is reports whether err wraps a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var _ error = (*Error)(nil)
