package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeInvalidState    ErrorType = "invalid_state"
	ErrorTypeSlotUnavailable ErrorType = "slot_unavailable"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeCorruptStore    ErrorType = "corrupt_store"
	ErrorTypeInternal        ErrorType = "internal"
)

// SchedulingError represents a structured error in the scheduling core
type SchedulingError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SchedulingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *SchedulingError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeSlotUnavailable  = "SLOT_UNAVAILABLE"
	ErrCodeAlreadyDispensed = "ALREADY_DISPENSED"
	ErrCodeAlreadyCompleted = "ALREADY_COMPLETED"
	ErrCodeInvalidRange     = "INVALID_RANGE"
	ErrCodeCorruptStore     = "CORRUPT_STORE"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeNotFound, Code: ErrCodeNotFound, Message: message}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeForbidden, Code: ErrCodeForbidden, Message: message}
}

// NewInvalidStateError creates a new invalid state error
func NewInvalidStateError(message string, details map[string]interface{}) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeInvalidState, Code: ErrCodeInvalidState, Message: message, Details: details}
}

// NewSlotUnavailableError creates a new slot unavailable error
func NewSlotUnavailableError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeSlotUnavailable, Code: ErrCodeSlotUnavailable, Message: message}
}

// NewAlreadyDispensedError creates a new already dispensed error
func NewAlreadyDispensedError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeInvalidState, Code: ErrCodeAlreadyDispensed, Message: message}
}

// NewAlreadyCompletedError creates a new already completed error
func NewAlreadyCompletedError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeInvalidState, Code: ErrCodeAlreadyCompleted, Message: message}
}

// NewInvalidRangeError creates a new invalid range error
func NewInvalidRangeError(message string) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidRange, Message: message}
}

// NewCorruptStoreError creates a new corrupt store error
func NewCorruptStoreError(message string, cause error) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeCorruptStore, Code: ErrCodeCorruptStore, Message: message, Cause: cause}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidInput, Message: message, Details: details}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *SchedulingError {
	return &SchedulingError{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: message, Cause: cause}
}

// AsSchedulingError extracts a *SchedulingError from an error chain.
func AsSchedulingError(err error) (*SchedulingError, bool) {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given scheduling error code.
func IsErrorCode(err error, code string) bool {
	se, ok := AsSchedulingError(err)
	return ok && se.Code == code
}

// IsErrorType reports whether err carries the given scheduling error type.
func IsErrorType(err error, t ErrorType) bool {
	se, ok := AsSchedulingError(err)
	return ok && se.Type == t
}
