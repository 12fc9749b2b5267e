package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/repo"
)

// readValue is what a bare --size flag holds. The NUL byte keeps it apart
// from anything typed on a command line.
const readValue = "\x00read"

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	Size string
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "config [--size [value]]",
		Aliases: []string{"c"},
		Short:   "Configure the repository",
		Long: `Read or change repository settings.

With no flag, every setting is printed. --size alone prints the size limit;
--size VALUE sets it. Sizes take an optional suffix: k m g t are binary
multiples (1024^n), K M G T are decimal (1000^n). Fractions such as 1.5g are
allowed; the result must be positive.

Example:
  archiver -r ~/.trash config
  archiver -r ~/.trash config --size
  archiver -r ~/.trash config --size 5g`,
		Args:          usageArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Size, "size", "s", "", "set or get the total size limit of archived blobs")
	cmd.Flags().Lookup("size").NoOptDefVal = readValue

	return cmd
}

// configRequest is one parsed config invocation. An empty value is a read.
type configRequest struct {
	keys  []config.Key
	value string
}

// parseConfigArgs resolves the optional --size value, which may also arrive
// as the positional argument following a bare --size.
func parseConfigArgs(opts *ConfigOptions, args []string, cmd *cobra.Command) (configRequest, error) {
	if !cmd.Flags().Changed("size") {
		if len(args) > 0 {
			return configRequest{}, opts.usageFailed(cmd, "unexpected argument "+args[0], nil)
		}
		return configRequest{keys: config.Keys}, nil
	}

	value := opts.Size
	if value == readValue {
		value = ""
		if len(args) == 1 {
			value = args[0]
		}
	} else if len(args) > 0 {
		return configRequest{}, opts.usageFailed(cmd, "unexpected argument "+args[0], nil)
	}
	return configRequest{keys: []config.Key{config.KeySize}, value: value}, nil
}

func runConfig(opts *ConfigOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := parseConfigArgs(opts, args, cmd)
	if err != nil {
		return err
	}

	result := ConfigResult{}
	err = opts.session(cmd, func(ctx context.Context, r *repo.Repository) error {
		if req.value != "" {
			stored, err := r.SetConfig(ctx, req.keys[0], req.value)
			if err != nil {
				return err
			}
			result = append(result, ConfigEntry{Key: string(req.keys[0]), Value: stored})
			return nil
		}
		for _, key := range req.keys {
			value, err := r.Config(ctx, key)
			if err != nil {
				return err
			}
			result = append(result, ConfigEntry{Key: string(key), Value: value})
		}
		return nil
	})
	if err != nil {
		return opts.commandFailed(formatter, "config", err)
	}
	return formatter.Success(result)
}
