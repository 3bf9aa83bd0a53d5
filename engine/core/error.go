package core

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrInternal        = errors.New("internal error")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrEntityNotMerged = errors.New("entity has no merge contribution from contributor")
	ErrRemoved         = errors.New("operation removed")
)

// Error codes
const (
	ErrInternalCode       = "INTERNAL_ERROR"
	ErrValidationCode     = "VALIDATION_ERROR"
	ErrInvalidFilterCode  = "INVALID_FILTER"
	ErrInvalidStateCode   = "INVALID_STATE"
	ErrInvalidActionCode  = "INVALID_ACTION"
	ErrNotMergedCode      = "ENTITY_NOT_MERGED"
	ErrTenantNotFoundCode = "TENANT_NOT_FOUND"
	ErrUnavailableCode    = "DOWNSTREAM_UNAVAILABLE"
	ErrTimeoutCode        = "DOWNSTREAM_TIMEOUT"
	ErrRemovedCode        = "REMOVED_OPERATION"
	ErrPartialResultCode  = "PARTIAL_RESULT"
)

// Error represents errors that can occur during gateway operations
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a gateway error
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the taxonomy code carried by err, or INTERNAL_ERROR when
// err carries none.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ErrInternalCode
}

// InvalidFilter reports a filter expression the translator rejected. The
// message names the expected format so callers can self-correct.
func InvalidFilter(message string) *Error {
	return NewError(ErrInvalidFilterCode, message)
}

// InvalidState reports a lifecycle operation attempted against an object
// whose current state forbids it.
func InvalidState(message string) *Error {
	return NewError(ErrInvalidStateCode, message)
}

// InvalidAction reports an action outside the set the object currently
// permits.
func InvalidAction(message string) *Error {
	return NewError(ErrInvalidActionCode, message)
}

// TenantNotFound reports a tenant identifier absent from the registry.
func TenantNotFound(tenantID string) *Error {
	return &Error{
		Code:    ErrTenantNotFoundCode,
		Message: fmt.Sprintf("tenant %q is not configured", tenantID),
		Err:     ErrTenantNotFound,
	}
}

// Removed reports a retired operation and names its replacement.
func Removed(operation, replacement, mapping string) *Error {
	return &Error{
		Code:    ErrRemovedCode,
		Message: fmt.Sprintf("operation %q has been removed; use %q instead", operation, replacement),
		Err:     ErrRemoved,
		Details: mapping,
	}
}
