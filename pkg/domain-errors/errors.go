// Package dErrors carries coded domain errors across service boundaries.
//
// Every error that crosses a service boundary is tagged with a Code so
// callers (handlers, batch schedulers, event consumers) can branch on the
// class of failure without string matching. Wrapping preserves the cause
// chain for errors.Is/errors.As.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeAlreadyPaid        Code = "already_paid"
	CodeInvalidState       Code = "invalid_state"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error from a format string.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for ; err != nil; err = errors.Unwrap(err) {
		if errors.As(err, &de) && de.Code == code {
			return true
		}
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when
// the error carries no code at all.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
