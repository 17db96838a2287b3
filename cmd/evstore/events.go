package main

import (
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage/event"
)

type eventsCmd struct {
	cfg  *Config
	From uint64
}

func (c *eventsCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <aggregate-id>",
		Short: "Print the events of an aggregate as JSON lines.",
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

			p := newPrinter(cmd.OutOrStdout())
			for msg, err := range event.All(r.store.ReadEvents(cmd.Context(), args[0], c.From)) {
				if err != nil && msg.ID == "" {
					return err
				}
				if err := p.message(msg, err); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Uint64VarP(&c.From, "from", "f", 0, "First sequence number to print.")

	return cmd
}
