package cli

import (
	"context"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/repo"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list [pattern]",
		Aliases: []string{"l"},
		Short:   "Print items",
		Long: `Print every item in the catalog, oldest first, whatever its status.

The optional pattern is a regular expression searched anywhere in the item
name.

Text rows have the form:
  #NNN   name version timestamp status source archive size`,
		Args:          usageArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return runList(rootOpts, pattern, cmd)
		},
	}

	return cmd
}

func runList(opts *RootOptions, pattern string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	re, err := regexp.Compile(pattern)
	if err != nil {
		return opts.usageFailed(cmd, "invalid pattern", err)
	}

	result := ItemList{}
	err = opts.session(cmd, func(ctx context.Context, r *repo.Repository) error {
		items, err := r.List(ctx, re)
		if err != nil {
			return err
		}
		for _, item := range items {
			result = append(result, newItemView(item))
		}
		return nil
	})
	if err != nil {
		return opts.commandFailed(formatter, "list", err)
	}
	return formatter.Success(result)
}
