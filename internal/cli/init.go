package cli

import (
	"fmt"
	"io"
	"otapush/internal/config"
	"otapush/internal/version"

	"github.com/spf13/cobra"
)

func newInitCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example configuration file",
		Long: `Init writes an example configuration to path, or to the --config path when
none is given. The format follows the file extension: .yaml, .toml or .json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.SaveExample(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(a.opts.Stdout, "Wrote example configuration to %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			return a.printer(formatText).print(info, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, info.String())
				return err
			})
		},
	}
}
