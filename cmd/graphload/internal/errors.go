// Package internal holds CLI plumbing shared by the graphload commands:
// exit codes, error handling, and output formatting.
package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/internal/types"
)

// Exit code constants for the CLI
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitError indicates a general error
	ExitError = 1
	// ExitTimeout indicates the operation timed out
	ExitTimeout = 3
	// ExitCancelled indicates the operation was cancelled
	ExitCancelled = 4
	// ExitConfigError indicates a configuration or manifest error
	ExitConfigError = 10
	// ExitConnectionError indicates the database was unreachable or rejected
	// the credentials
	ExitConnectionError = 11
	// ExitVersionError indicates an unsupported or undetectable server version
	ExitVersionError = 12
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Cause: err}
}

// HandleError handles an error and returns the appropriate exit code.
// It also prints the error message to the command's error output.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Error())
		return cliErr.Code
	}

	cmd.PrintErrln("Error:", err.Error())
	return exitCodeFor(types.CodeOf(err))
}

// exitCodeFor maps the loader's error taxonomy onto CLI exit codes.
func exitCodeFor(code types.ErrorCode) int {
	switch code {
	case types.NEO_UNREACHABLE, types.NEO_AUTH_FAILED, types.NEO_CONNECTION_CLOSED:
		return ExitConnectionError
	case types.NEO_VERSION_UNKNOWN, types.NEO_VERSION_UNSUPPORTED:
		return ExitVersionError
	case types.CONFIG_LOAD_FAILED, types.CONFIG_VALIDATION_FAILED, types.MANIFEST_PARSE_FAILED:
		return ExitConfigError
	default:
		return ExitError
	}
}
