// Package apperr carries the error taxonomy shared by the order, payment and
// inventory services. Every business failure is an *Error with a stable Code
// so that transports can map it to a distinct response.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound              Code = "NOT_FOUND"
	CodeOrderNotFound         Code = "ORDER_NOT_FOUND"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeInventoryUpdateFailed Code = "INVENTORY_UPDATE_FAILED"
	CodeOwnershipMismatch     Code = "OWNERSHIP_MISMATCH"
	CodeAlreadyProcessed      Code = "ALREADY_PROCESSED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeUnavailable           Code = "UNAVAILABLE"
	CodeInternal              Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the package sentinels work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrOrderNotFound         = &Error{Code: CodeOrderNotFound}
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument}
	ErrInsufficientStock     = &Error{Code: CodeInsufficientStock}
	ErrInventoryUpdateFailed = &Error{Code: CodeInventoryUpdateFailed}
	ErrOwnershipMismatch     = &Error{Code: CodeOwnershipMismatch}
	ErrAlreadyProcessed      = &Error{Code: CodeAlreadyProcessed}
	ErrInvalidTransition     = &Error{Code: CodeInvalidTransition}
	ErrUnavailable           = &Error{Code: CodeUnavailable}
)

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Fields attaches per-field validation messages to an invalid-argument error.
type Fields map[string]string

type ValidationError struct {
	Fields Fields
}

func (v *ValidationError) Error() string { return "validation failed" }

func (v *ValidationError) Unwrap() error {
	return &Error{Code: CodeInvalidArgument, Message: "validation failed"}
}

func Invalid(fields Fields) *ValidationError {
	return &ValidationError{Fields: fields}
}
