package main

import (
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ln80/eventstorage/dynamo"
	"github.com/ln80/eventstorage/internal/logger"
	"github.com/ln80/eventstorage/s3"
)

type migrateCmd struct {
	cfg *Config
}

func (c *migrateCmd) build() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storage resources of the backend: SQL schema, DynamoDB table or S3 bucket.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			r, err := open(ctx, *c.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := r.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()

			switch {
			case r.sqlStore != nil:
				if err := r.sqlStore.Migrate(ctx); err != nil {
					return err
				}
				logger.Info("SQL schema created", logger.F("driver", c.cfg.SQLDriver))
			case r.dynamo != nil:
				if err := dynamo.CreateTable(ctx, r.dynamo, c.cfg.DynamoTable); err != nil {
					return err
				}
				logger.Info("DynamoDB table created", logger.F("table", c.cfg.DynamoTable))
			default:
				logger.Debug("nothing to migrate", logger.F("backend", c.cfg.Backend))
			}

			if r.s3 != nil {
				if err := s3.CreateBucket(ctx, r.s3, c.cfg.S3Bucket, c.cfg.Region); err != nil {
					return err
				}
				logger.Info("S3 bucket created", logger.F("bucket", c.cfg.S3Bucket))
			}
			return nil
		},
	}
}
