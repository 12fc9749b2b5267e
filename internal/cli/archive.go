package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/repo"
)

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "archive <source>",
		Aliases: []string{"a"},
		Short:   "Archive a file or directory",
		Long: `Compress a file or directory into a new versioned blob under the root.

The item is named after the source's base name. Each archive of the same
name gets the next version number; versions are never reused.

Example:
  archiver -r ~/.trash archive ./old-project`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runArchive(opts *RootOptions, source string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var result ArchiveResult
	err := opts.session(cmd, func(ctx context.Context, r *repo.Repository) error {
		item, err := r.Archive(ctx, source)
		if err != nil {
			return err
		}
		result.Item = newItemView(item)
		return nil
	})
	if err != nil {
		return opts.commandFailed(formatter, "archive", err)
	}
	return formatter.Success(result)
}
