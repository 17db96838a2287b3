package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/internal/logger"
	evsqs "github.com/ln80/eventstorage/sqs"
)

type forwardCmd struct {
	cfg    *Config
	After  string
	Limit  int
	Queues []string
}

func (c *forwardCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward the global event log to SQS FIFO queues and print the last forwarded token.",
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

			awsCfg, err := r.aws(cmd.Context())
			if err != nil {
				return err
			}
			svc := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				o.BaseEndpoint = withEndpoint(c.cfg.SQSEndpoint)
			})

			fwd := evsqs.NewForwarder(r.store, svc, c.Queues, func(cfg *evsqs.ForwarderConfig) {
				cfg.Limit = c.Limit
				cfg.Logger = logger.Logger()
			})
			last, err := fwd.Forward(cmd.Context(), after)
			if last != nil {
				fmt.Fprintln(cmd.OutOrStdout(), last.String())
			}
			if err != nil {
				return err
			}
			logger.Info("events forwarded", logger.F("after", c.After), logger.FArr("queues", c.Queues))
			return nil
		},
	}

	cmd.Flags().StringVarP(&c.After, "after", "a", "", "Forward the events positioned after this token.")
	cmd.Flags().IntVarP(&c.Limit, "limit", "n", 0, "Maximum number of events to forward, no limit if zero.")
	cmd.Flags().StringSliceVarP(&c.Queues, "queue", "q", nil, "URL of a destination FIFO queue, can be repeated.")
	cmd.MarkFlagRequired("queue")

	return cmd
}
