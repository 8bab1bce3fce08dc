package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "authzen-pdp version %s\n", version.Full())
			return nil
		},
	}
}
