package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a namespaced error code identifying a class of fabric failure.
type ErrorCode string

const (
	ErrConfiguration       ErrorCode = "CONFIGURATION_ERROR"
	ErrBackendUnavailable  ErrorCode = "BACKEND_UNAVAILABLE"
	ErrPoolExhausted       ErrorCode = "POOL_EXHAUSTED"
	ErrValidation          ErrorCode = "VALIDATION_ERROR"
	ErrEntityNotFound      ErrorCode = "ENTITY_NOT_FOUND"
	ErrDuplicateID         ErrorCode = "DUPLICATE_ID"
	ErrSchemaConflict      ErrorCode = "SCHEMA_CONFLICT"
	ErrQuery               ErrorCode = "QUERY_ERROR"
	ErrPolicyVeto          ErrorCode = "POLICY_VETO"
	ErrBackpressure        ErrorCode = "BACKPRESSURE_EXCEEDED"
	ErrProcessorStopped    ErrorCode = "PROCESSOR_STOPPED"
	ErrCancelled           ErrorCode = "CANCELLED"
	ErrTimeout             ErrorCode = "TIMEOUT"
)

// FabricError is a structured error carrying a taxonomy code, a human message,
// a retryability hint, and an optional wrapped cause.
type FabricError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *FabricError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FabricError) Unwrap() error {
	return e.Cause
}

// Is matches by error code, ignoring message and cause. This lets callers
// use errors.Is(err, types.NewError(types.ErrEntityNotFound, "")) as a sentinel check.
func (e *FabricError) Is(target error) bool {
	var fe *FabricError
	if errors.As(target, &fe) {
		return e.Code == fe.Code
	}
	return false
}

func NewError(code ErrorCode, message string) *FabricError {
	return &FabricError{Code: code, Message: message}
}

func NewRetryableError(code ErrorCode, message string) *FabricError {
	return &FabricError{Code: code, Message: message, Retryable: true}
}

func WrapError(code ErrorCode, message string, cause error) *FabricError {
	return &FabricError{Code: code, Message: message, Cause: cause}
}

func WrapRetryableError(code ErrorCode, message string, cause error) *FabricError {
	return &FabricError{Code: code, Message: message, Cause: cause, Retryable: true}
}

// IsRetryable reports whether err is a FabricError marked retryable.
func IsRetryable(err error) bool {
	var fe *FabricError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a FabricError.
func CodeOf(err error) ErrorCode {
	var fe *FabricError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
