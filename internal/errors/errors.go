package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed or incomplete command. Never retried.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeNotFound indicates the referenced job does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a write collided with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeRepository indicates the job store could not complete an operation.
	ErrCodeRepository ErrorCode = "repository"
	// ErrCodePublish indicates an outbound event could not be handed to the transport.
	ErrCodePublish ErrorCode = "publish"
	// ErrCodeInternal indicates an unexpected condition.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a deadline was exceeded.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation errors.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Repository wraps a job store failure. Errors that already carry a code are kept as the cause
// so IsNotFound and friends still match through the chain.
func Repository(err error, message string) *AppError {
	return Wrap(err, ErrCodeRepository, message)
}

// Publish wraps a transport publish failure.
func Publish(err error, message string) *AppError {
	return Wrap(err, ErrCodePublish, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// hasCode reports whether any AppError in the chain carries code.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsValidation checks if an error is (or wraps) a Validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsNotFound checks if an error is (or wraps) a NotFound error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is (or wraps) a Conflict error.
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// IsRepository checks if an error is (or wraps) a Repository error.
func IsRepository(err error) bool { return hasCode(err, ErrCodeRepository) }

// IsPublish checks if an error is (or wraps) a Publish error.
func IsPublish(err error) bool { return hasCode(err, ErrCodePublish) }

// IsTimeout checks if an error is (or wraps) a Timeout error.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is (or wraps) a Canceled error.
func IsCanceled(err error) bool { return hasCode(err, ErrCodeCanceled) }

// IsRetryable reports whether redelivering the message that produced err can succeed.
// Validation failures are permanent; everything else is assumed transient.
func IsRetryable(err error) bool {
	return err != nil && !IsValidation(err)
}

// GetCode returns the outermost ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
