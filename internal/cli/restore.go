package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/repo"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Directory string
	Version   int64
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "restore <item>",
		Aliases: []string{"r"},
		Short:   "Restore an archived item",
		Long: `Extract an archived item back onto the filesystem.

Only items with status Archived can be restored. If several versions of the
name are archived, --version picks one. The item is restored into the
directory its source came from unless --directory names another existing
directory.

An extraction that fails marks the item Corrupted; the command still
succeeds and the status shows up in list.

Example:
  archiver -r ~/.trash restore old-project
  archiver -r ~/.trash restore notes.txt -v 3 -d /tmp`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Directory, "directory", "d", "", "directory to restore into instead of the original one")
	cmd.Flags().Int64VarP(&opts.Version, "version", "v", 0, "version to restore when several are archived")

	return cmd
}

func runRestore(opts *RestoreOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req := repo.RestoreRequest{Name: name, Directory: opts.Directory}
	if cmd.Flags().Changed("version") {
		if opts.Version < 0 {
			return opts.usageFailed(cmd, "invalid version: must not be negative", nil)
		}
		v := opts.Version
		req.Version = &v
	}

	var result RestoreResult
	err := opts.session(cmd, func(ctx context.Context, r *repo.Repository) error {
		restored, err := r.Restore(ctx, req)
		if err != nil {
			return err
		}
		result = RestoreResult{Item: newItemView(restored.Item), Directory: restored.Directory}
		return nil
	})
	if err != nil {
		return opts.commandFailed(formatter, "restore", err)
	}
	return formatter.Success(result)
}
