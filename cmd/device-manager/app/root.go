// Package app implements the device-manager command line interface.
package app

import (
	"github.com/spf13/cobra"

	"github.com/edgekit/device-manager/internal/logger"
	"github.com/edgekit/device-manager/internal/version"
)

// GlobalOptions holds options shared across all commands.
type GlobalOptions struct {
	// Verbose enables debug logging regardless of LOG_LEVEL.
	Verbose bool
}

// NewRootCommand creates the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	globalOpts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "device-manager",
		Short: "Supervise inference-server containers on an edge device",
		Long: `device-manager runs next to one or more inference-server containers and
exposes an HTTP API for inspecting the device, managing container
lifecycles, streaming logs, and collecting metrics.

Configuration comes from environment variables (NUM_WORKERS, PORT, HOST,
API_LOGGING_ENABLED, and others); see the serve command for details.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if globalOpts.Verbose {
				logger.SetLevel("debug")
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&globalOpts.Verbose, "verbose", "v", false,
		"enable debug logging")

	cmd.AddCommand(NewServeCommand(globalOpts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
