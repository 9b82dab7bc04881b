package engine

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of a configuration error.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a caller-correctable argument error.
	// These are raised synchronously by constructors and setters and never retried.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// ErrInvalidArgument is the sentinel matched by every invalid argument error.
//
//	if errors.Is(err, engine.ErrInvalidArgument) { ... }
var ErrInvalidArgument = &EngineError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}

// EngineError represents a classified engine error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Code is the error classification.
	Code ErrorCode `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Field is the argument that was rejected, if applicable.
	Field string `json:"field,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewInvalidArgumentError creates a new invalid argument error for the given field.
func NewInvalidArgumentError(field, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// IsInvalidArgument returns true if the error is an invalid argument error.
func IsInvalidArgument(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidArgument
	}
	return false
}
