package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

type snapshotCmd struct {
	cfg *Config
}

func (c *snapshotCmd) build() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <aggregate-id>",
		Short: "Print the latest snapshot of an aggregate as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := open(cmd.Context(), *c.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := r.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()

			snap, ok, err := r.store.ReadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("snapshot of aggregate %s not found", args[0])
			}
			return newPrinter(cmd.OutOrStdout()).message(snap, nil)
		},
	}
}
