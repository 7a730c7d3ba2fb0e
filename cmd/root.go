// Package cmd defines the adintel command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and registers the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "adintel",
		Short: "Collects and preprocesses ads from public ad libraries.",
		Long: `adintel pulls ads from ad libraries, search result pages and competitor
sites, normalizes them into one record shape, cleans their text, reads the
text in their images and writes the result to a file, GCS, Postgres or Pub/Sub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newCollectCmd(&cfgFile))
	cmd.AddCommand(newPlatformsCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
