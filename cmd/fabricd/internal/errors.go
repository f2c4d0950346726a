package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

// Exit codes for fabricd.
const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitTimeout       = 3
	ExitCancelled     = 4
	ExitConfigError   = 10
	ExitGraphError    = 11
	ExitDatabaseError = 12
)

// CLIError is a CLI-specific error carrying its own exit code.
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error { return e.Cause }

func NewCLIError(code int, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Cause: err}
}

// HandleError prints err to the command's error stream and returns the
// process exit code it maps to.
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
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil && IsVerbose() {
			cmd.PrintErrln("Cause:", cliErr.Cause)
		}
		return cliErr.Code
	}

	var fabricErr *types.FabricError
	if errors.As(err, &fabricErr) {
		cmd.PrintErrln("Error:", fabricErr.Error())
		return mapFabricErrorToExitCode(fabricErr)
	}

	cmd.PrintErrln("Error:", err)
	return ExitError
}

func mapFabricErrorToExitCode(err *types.FabricError) int {
	switch err.Code {
	case types.ErrConfiguration, types.ErrValidation:
		return ExitConfigError
	case types.ErrBackendUnavailable, types.ErrPoolExhausted, types.ErrQuery, types.ErrSchemaConflict:
		return ExitGraphError
	case types.ErrTimeout:
		return ExitTimeout
	case types.ErrCancelled:
		return ExitCancelled
	default:
		return ExitError
	}
}

// IsVerbose checks the environment and raw args for verbose mode, used by
// panic recovery before cobra flags have been parsed.
func IsVerbose() bool {
	if os.Getenv("FABRIC_VERBOSE") != "" {
		return true
	}
	for _, arg := range os.Args {
		if arg == "-v" || arg == "--verbose" {
			return true
		}
	}
	return false
}
