// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories, and each category maps to one
// error kind callers are expected to handle:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): an entity or request violates an invariant; nothing was written
//   - Connection errors (200-299): the database cannot be reached, authenticated or addressed
//   - Data access errors (300-399): a query or write failed after a connection was established
//   - Lifecycle errors (400-499): the position lifecycle was handed an order in the wrong state
//   - Exchange errors (500-599): the exchange collaborator failed to report trades
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidOrder, "quantity must be positive")
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to load trade history", originalErr)
//
//	// Check the error kind
//	if errors.IsDataAccessError(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the category of the error code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	return GetCode(err).Kind()
}

// IsValidationError reports whether err was rejected before any write.
func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}

// IsConnectionError reports whether err means the database could not be reached.
func IsConnectionError(err error) bool {
	return KindOf(err) == KindConnection
}

// IsDataAccessError reports whether err is a failed query or write on a live connection.
func IsDataAccessError(err error) bool {
	return KindOf(err) == KindDataAccess
}

// IsInvalidOrderStateError reports whether err is a lifecycle rejection of a non-FILLED order.
func IsInvalidOrderStateError(err error) bool {
	return KindOf(err) == KindInvalidOrderState
}

// IsTimeout reports whether the cause of err is a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
