package main

import (
	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage/internal/logger"
)

// newRootCmd builds the command tree. Commands that need the store share the configuration
// bound to the persistent flags.
func newRootCmd() *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:           "evstore",
		Short:         "Inspect and operate an event store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.load(cmd.Flags()); err != nil {
				return err
			}
			return logger.SetLevel(cfg.LogLevel)
		},
	}
	cfg.flags(root.PersistentFlags())

	root.AddCommand(
		(&eventsCmd{cfg: cfg}).build(),
		(&tailCmd{cfg: cfg}).build(),
		(&snapshotCmd{cfg: cfg}).build(),
		(&forwardCmd{cfg: cfg}).build(),
		(&migrateCmd{cfg: cfg}).build(),
		(&versionCmd{}).build(),
	)
	return root
}
