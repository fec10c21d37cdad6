package errors

import (
	"errors"
	"fmt"
)

// AppError is the structured error type used throughout the library.
// It carries a stable Code for programmatic handling, a human-readable
// Message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// New creates an AppError with the given code, message, and optional cause.
func New(code string, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &AppError{Code: "X"}) to match on Code alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// Wrap attaches a message to an existing error without discarding its code
// if it is already an AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Code returns the AppError code carried by err, or CodeInternal if err is
// not (or does not wrap) an AppError.
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Standard codes shared across the library. Domain packages (pkg/bus,
// pkg/channel, pkg/messaging, ...) define their own codes alongside these
// where a more specific discriminator is useful.
const (
	CodeInternal         = "INTERNAL"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeTimeout          = "TIMEOUT"
	CodeClosed           = "CLOSED"
	CodeFull             = "FULL"
	CodeExpired          = "EXPIRED"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeSerialization    = "SERIALIZATION_ERROR"
	CodePolicyViolation  = "POLICY_VIOLATION"
)
