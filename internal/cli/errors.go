package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/lock"
	"github.com/roach88/archiver/internal/logging"
	"github.com/roach88/archiver/internal/repo"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric = "E001" // Generic/unknown error
	ErrCodeUsage   = "E002" // Bad flags or arguments
	ErrCodeLock    = "E003" // Lock file could not be opened

	// Repository errors
	ErrCodeNotFound      = "E101" // No archived item matches
	ErrCodeAmbiguous     = "E102" // Several versions match
	ErrCodeCompress      = "E103" // Compressor failed
	ErrCodeInvalidSource = "E104" // Source missing or inside the root

	// Config errors
	ErrCodeUnknownKey  = "E111" // Key outside the recognized set
	ErrCodeInvalidSize = "E112" // Size does not parse or is not positive
)

var errorCodes = []struct {
	target error
	code   string
}{
	{repo.ErrNotFound, ErrCodeNotFound},
	{repo.ErrAmbiguous, ErrCodeAmbiguous},
	{repo.ErrCompress, ErrCodeCompress},
	{repo.ErrInvalidSource, ErrCodeInvalidSource},
	{config.ErrUnknownKey, ErrCodeUnknownKey},
	{config.ErrInvalidSize, ErrCodeInvalidSize},
	{lock.ErrLockFile, ErrCodeLock},
}

// errorCode maps a repository error to its CLI error code.
func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.code
		}
	}
	return ErrCodeGeneric
}

// commandFailed logs a fatal repository error and reports it. Structured
// formats also get an error envelope on stdout; in text mode the caller of
// Execute prints the message.
func (o *RootOptions) commandFailed(formatter *OutputFormatter, op string, err error) error {
	if o.logger != nil {
		o.logger.Log(context.Background(), logging.LevelFatal, op+" failed", "error", err)
	}
	if formatter.Format != "text" {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
	}
	return WrapExitError(ExitFailure, op+" failed", err)
}

// usageError reports bad flags or arguments (exit code 2).
func usageError(message string, err error) error {
	if err == nil {
		return NewExitError(ExitCommandError, message)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// usageArgs turns argument validation failures into usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError("invalid arguments", err)
		}
		return nil
	}
}
