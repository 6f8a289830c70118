// Package errorcodes defines the protocol-facing command error and its
// fixed-shape rendering.
package errorcodes

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultType is the error type reported unless a handler overrides it.
	DefaultType = "08"
	// DefaultRevision is the revision suffix of every error response.
	DefaultRevision = "00"
	// UnsupportedType marks an unsupported variant (derivation type, PIN block
	// type, algorithm).
	UnsupportedType = "00"
)

// ErrUnsupported is the cause attached to unsupported-variant errors.
var ErrUnsupported = errors.New("unsupported variant")

// CommandError represents a failure attributed to one 1-based input field.
// Field 0 is the command itself.
type CommandError struct {
	Field    int
	Cause    error
	Type     string
	Revision string
}

// New returns a CommandError on field with the default type and revision.
func New(field int, cause error) *CommandError {
	return &CommandError{Field: field, Cause: cause, Type: DefaultType, Revision: DefaultRevision}
}

// Newf is New with a formatted cause.
func Newf(field int, format string, args ...any) *CommandError {
	return New(field, fmt.Errorf(format, args...))
}

// Unsupported returns the fixed "000100" error used for variants the simulator
// does not implement.
func Unsupported(what string) *CommandError {
	return &CommandError{
		Field:    1,
		Cause:    fmt.Errorf("%w: %s", ErrUnsupported, what),
		Type:     UnsupportedType,
		Revision: DefaultRevision,
	}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("field %d: command error %s", e.Field, e.Code())
	}

	return fmt.Sprintf("field %d: %v", e.Field, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// Code renders EETTRR. Field numbers up to 10 get a leading zero, so field 10
// renders as "010" while 11 renders as "11"; clients depend on this shape.
func (e *CommandError) Code() string {
	typ, rev := e.Type, e.Revision
	if typ == "" {
		typ = DefaultType
	}
	if rev == "" {
		rev = DefaultRevision
	}

	field := strconv.Itoa(e.Field)
	if e.Field <= 10 {
		field = "0" + field
	}

	return typ + field + rev
}

// Fields returns the response fields of the generic error shape.
func (e *CommandError) Fields() []string {
	return []string{"00", e.Code()}
}

// From converts any error into a CommandError. Errors that are not already a
// CommandError are attributed to field 0.
func From(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}

	return New(0, err)
}
