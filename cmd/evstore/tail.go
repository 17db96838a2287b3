package main

import (
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage/event"
)

type tailCmd struct {
	cfg   *Config
	After string
	Limit int
}

func (c *tailCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the global event log as JSON lines, after the given token.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			after, err := event.ParseToken(c.After)
			if err != nil {
				return err
			}
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
			count := 0
			for msg, err := range event.All(r.store.ReadTrackedEvents(cmd.Context(), after)) {
				if err != nil && msg.ID == "" {
					return err
				}
				if err := p.tracked(msg, err); err != nil {
					return err
				}
				count++
				if c.Limit > 0 && count >= c.Limit {
					break
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&c.After, "after", "a", "", "Print the events positioned after this token.")
	cmd.Flags().IntVarP(&c.Limit, "limit", "n", 0, "Maximum number of events to print, no limit if zero.")

	return cmd
}
