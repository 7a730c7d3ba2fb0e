package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/adintel/internal/source"
)

func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "Lists the supported source platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range source.Platforms() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
