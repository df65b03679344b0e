package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for graphload errors.
type ErrorCode string

// Connection and probe error codes. All of these are fatal: they abort the
// pipeline rather than being accumulated into the load summary.
const (
	NEO_UNREACHABLE         ErrorCode = "NEO_UNREACHABLE"
	NEO_AUTH_FAILED         ErrorCode = "NEO_AUTH_FAILED"
	NEO_VERSION_UNKNOWN     ErrorCode = "NEO_VERSION_UNKNOWN"
	NEO_VERSION_UNSUPPORTED ErrorCode = "NEO_VERSION_UNSUPPORTED"
	NEO_CONNECTION_CLOSED   ErrorCode = "NEO_CONNECTION_CLOSED"
)

// Write-path error codes.
const (
	SCHEMA_APPLY_FAILED ErrorCode = "SCHEMA_APPLY_FAILED"
	WRITE_TRANSIENT     ErrorCode = "WRITE_TRANSIENT"
	WRITE_INVALID       ErrorCode = "WRITE_INVALID"
	RECORD_INVALID      ErrorCode = "RECORD_INVALID"
	BATCH_WRITE_FAILED  ErrorCode = "BATCH_WRITE_FAILED"
)

// Planning and configuration error codes.
const (
	PHASE_UNKNOWN            ErrorCode = "PHASE_UNKNOWN"
	PHASE_DUPLICATE_ID       ErrorCode = "PHASE_DUPLICATE_ID"
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	MANIFEST_PARSE_FAILED    ErrorCode = "MANIFEST_PARSE_FAILED"
	SOURCE_OPEN_FAILED       ErrorCode = "SOURCE_OPEN_FAILED"
	SOURCE_READ_FAILED       ErrorCode = "SOURCE_READ_FAILED"
	CHECKPOINT_OPEN_FAILED   ErrorCode = "CHECKPOINT_OPEN_FAILED"
	CHECKPOINT_WRITE_FAILED  ErrorCode = "CHECKPOINT_WRITE_FAILED"
)

// LoadError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type LoadError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a LoadError with the same Code.
func (e *LoadError) Is(target error) bool {
	var loadErr *LoadError
	if errors.As(target, &loadErr) {
		return e.Code == loadErr.Code
	}
	return false
}

// NewError creates a new non-retryable LoadError with the given code and message.
func NewError(code ErrorCode, message string) *LoadError {
	return &LoadError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable LoadError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., lock timeouts).
func NewRetryableError(code ErrorCode, message string) *LoadError {
	return &LoadError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable LoadError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *LoadError {
	return &LoadError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// WrapRetryableError creates a retryable LoadError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *LoadError {
	return &LoadError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable reports whether err carries a retryable hint anywhere in its chain.
func IsRetryable(err error) bool {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Retryable
	}
	return false
}

// CodeOf returns the error code of the outermost LoadError in the chain,
// or an empty code if err is not a LoadError.
func CodeOf(err error) ErrorCode {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return ""
}
