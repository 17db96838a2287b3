package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage"
)

type versionCmd struct{}

func (c *versionCmd) build() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the eventstorage library.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := eventstorage.VERSION.Semver()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", v.Original())
			return err
		},
	}
}
