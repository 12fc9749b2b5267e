package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/compress"
	"github.com/roach88/archiver/internal/logging"
	"github.com/roach88/archiver/internal/repo"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Root      string
	Verbose   string // "fatal" | "error" | "info" | "verbose"
	LogFormat string // "text" | "json"
	Format    string // "text" | "json" | "yaml"

	// Logger, Compressor and Clock override the defaults (for testing).
	Logger     *slog.Logger
	Compressor compress.Compressor
	Clock      func() time.Time

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the archiver CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command bound to opts.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archiver",
		Short: "Capacity-bounded archive repository",
		Long: `A recycle bin for files and directories.

Archived paths are compressed into versioned blobs under a repository root.
When the blobs outgrow the configured size limit, the oldest are evicted.
Every command ends by reconciling the root against its catalog.`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return opts.prepare(cmd)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("invalid flags", err)
	})

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Root, "root", "r", "", "repository directory that holds the archive data (required)")
	flags.StringVar(&opts.Verbose, "verbose", "error", fmt.Sprintf("log level (%v); bare --verbose means info", logging.Verbosities))
	flags.Lookup("verbose").NoOptDefVal = "info"
	flags.StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	// Add subcommands
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// prepare validates global flags and builds the invocation's logger.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return usageError(fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats), nil)
	}
	if o.Root == "" {
		return o.usageFailed(cmd, `required flag "root" not set`, nil)
	}
	if !slices.Contains(ValidLogFormats, o.LogFormat) {
		return o.usageFailed(cmd, fmt.Sprintf("invalid log format %q: must be one of %v", o.LogFormat, ValidLogFormats), nil)
	}
	level, err := logging.ParseLevel(o.Verbose)
	if err != nil {
		return o.usageFailed(cmd, "invalid verbosity", err)
	}

	if o.Logger != nil {
		o.logger = o.Logger
		return nil
	}
	o.logger = logging.New(logging.Options{
		Out:   cmd.ErrOrStderr(),
		Level: level,
		JSON:  o.LogFormat == "json",
		RunID: logging.NewRunID(),
	})
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}
}

// usageFailed writes a usage error envelope for structured formats and
// returns the matching exit error. Format must already be valid.
func (o *RootOptions) usageFailed(cmd *cobra.Command, message string, err error) error {
	if o.Format != "text" {
		msg := message
		if err != nil {
			msg = message + ": " + err.Error()
		}
		_ = o.formatter(cmd).Error(ErrCodeUsage, msg, nil)
	}
	return usageError(message, err)
}

// session runs fn inside one locked repository session.
func (o *RootOptions) session(cmd *cobra.Command, fn func(context.Context, *repo.Repository) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := repo.Run(ctx, o.Root, repo.Options{
		Logger:     o.logger,
		Compressor: o.Compressor,
		Clock:      o.Clock,
	}, fn)
	return err
}
