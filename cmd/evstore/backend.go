package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ln80/eventstorage"
	"github.com/ln80/eventstorage/bbolt"
	"github.com/ln80/eventstorage/dynamo"
	"github.com/ln80/eventstorage/engine"
	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/internal/logger"
	evjson "github.com/ln80/eventstorage/json"
	"github.com/ln80/eventstorage/memory"
	"github.com/ln80/eventstorage/s3"
	eventsql "github.com/ln80/eventstorage/sql"
)

// resources holds the event store and the clients it runs on.
type resources struct {
	cfg   Config
	store *engine.Engine

	awsCfg   *aws.Config
	sqlStore *eventsql.Store
	dynamo   *dynamodb.Client
	s3       *awss3.Client

	closers []func() error
}

func (r *resources) Close() error {
	var merr *multierror.Error
	for i := len(r.closers) - 1; i >= 0; i-- {
		merr = multierror.Append(merr, r.closers[i]())
	}
	return merr.ErrorOrNil()
}

func (r *resources) aws(ctx context.Context) (aws.Config, error) {
	if r.awsCfg != nil {
		return *r.awsCfg, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(r.cfg.Region))
	if err != nil {
		return aws.Config{}, err
	}
	r.awsCfg = &cfg
	return cfg, nil
}

func withEndpoint(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}

// open connects to the configured backend and returns a storage engine with a tolerant serializer:
// the CLI has no registry of domain events, payloads are read as raw data.
func open(ctx context.Context, cfg Config) (r *resources, err error) {
	r = &resources{cfg: cfg}
	defer func() {
		if err != nil {
			if cerr := r.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
			r = nil
		}
	}()

	var backend event.Backend
	switch cfg.Backend {
	case BackendMemory:
		backend = memory.NewBackend()

	case BackendBolt:
		store, err := bbolt.Open(cfg.BoltPath)
		if err != nil {
			return r, err
		}
		r.closers = append(r.closers, store.Close)
		backend = store

	case BackendSQL:
		dialect, ok := eventsql.DialectOf(cfg.SQLDriver)
		if !ok {
			return r, fmt.Errorf("unsupported SQL driver %q", cfg.SQLDriver)
		}
		db, err := sql.Open(cfg.SQLDriver, cfg.SQLDSN)
		if err != nil {
			return r, err
		}
		r.closers = append(r.closers, db.Close)
		r.sqlStore = eventsql.New(db, dialect)
		backend = r.sqlStore

	case BackendDynamo:
		awsCfg, err := r.aws(ctx)
		if err != nil {
			return r, err
		}
		r.dynamo = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = withEndpoint(cfg.DynamoEndpoint)
		})
		backend = dynamo.NewBackend(r.dynamo, cfg.DynamoTable)

	default:
		return r, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}

	if cfg.S3Bucket != "" {
		awsCfg, err := r.aws(ctx)
		if err != nil {
			return r, err
		}
		r.s3 = awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			o.BaseEndpoint = withEndpoint(cfg.S3Endpoint)
			o.UsePathStyle = cfg.S3Endpoint != ""
		})
		backend = eventstorage.Compose(backend, s3.NewSnapshotStore(r.s3, cfg.S3Bucket))
	}

	r.store = engine.New(backend,
		engine.WithSerializer(evjson.NewSerializer("", evjson.AllowUnknown)),
		engine.WithLogger(logger.Logger()),
	)
	return r, nil
}
