package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for engine errors.
type ErrorCode string

// Chain definition and validation error codes
const (
	CHAIN_PARSE_FAILED      ErrorCode = "CHAIN_PARSE_FAILED"
	CHAIN_VALIDATION_FAILED ErrorCode = "CHAIN_VALIDATION_FAILED"
	CHAIN_NOT_FOUND         ErrorCode = "CHAIN_NOT_FOUND"
	CHAIN_ACTIVE_CONFLICT   ErrorCode = "CHAIN_ACTIVE_CONFLICT"
	NODE_TYPE_UNKNOWN       ErrorCode = "NODE_TYPE_UNKNOWN"
	NODE_CONFIG_INVALID     ErrorCode = "NODE_CONFIG_INVALID"
)

// Execution error codes
const (
	EXECUTION_REJECTED  ErrorCode = "EXECUTION_REJECTED"
	EXECUTION_ABANDONED ErrorCode = "EXECUTION_ABANDONED"
	EXECUTION_CANCELLED ErrorCode = "EXECUTION_CANCELLED"
	NODE_TIMEOUT        ErrorCode = "NODE_TIMEOUT"
	NODE_FAULT          ErrorCode = "NODE_FAULT"
	NO_MATCHING_CHAIN   ErrorCode = "NO_MATCHING_CHAIN"
)

// Storage and configuration error codes
const (
	STORE_QUERY_FAILED       ErrorCode = "STORE_QUERY_FAILED"
	STORE_OPEN_FAILED        ErrorCode = "STORE_OPEN_FAILED"
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// EngineError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is an EngineError with the same Code.
func (e *EngineError) Is(target error) bool {
	var engineErr *EngineError
	if errors.As(target, &engineErr) {
		return e.Code == engineErr.Code
	}
	return false
}

// NewError creates a new non-retryable EngineError with the given code and message.
func NewError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable EngineError with the given code
// and message. Use this for transient errors that may succeed on retry.
func NewRetryableError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable EngineError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err carries the given engine error code anywhere
// in its chain.
func IsCode(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is an EngineError marked retryable.
func IsRetryable(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Retryable
	}
	return false
}
