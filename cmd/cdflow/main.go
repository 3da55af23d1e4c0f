// Package main provides the cdflow command line tool, which imports donation platform
// exports into NationBuilder and rolls them back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cdflow",
		Short:         "Import donation exports into NationBuilder",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./cdflow.yaml, else ~/.cdflow/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with environment overrides")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "console log level: debug, info, warn or error")

	root.AddCommand(
		newAuthCmd(opts),
		newImportCmd(opts),
		newInitCmd(),
		newJobsCmd(opts),
		newRollbackCmd(opts),
		newServeCmd(opts),
	)

	return root
}
