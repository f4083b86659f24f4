package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/ui"
	"github.com/satishbabariya/schemadelta/cli/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Header("schemadelta", "Schema delta migrations")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print a single line")
	return cmd
}
