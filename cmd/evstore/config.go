package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
)

const envPrefix = "EVSTORE"

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQL    = "sql"
	BackendDynamo = "dynamo"
)

// Config is loaded from EVSTORE_* environment variables; command line flags take precedence.
type Config struct {
	Backend        string `envconfig:"BACKEND" default:"bolt"`
	BoltPath       string `envconfig:"BOLT_PATH" default:"events.db"`
	SQLDriver      string `envconfig:"SQL_DRIVER" default:"sqlite3"`
	SQLDSN         string `envconfig:"SQL_DSN"`
	DynamoTable    string `envconfig:"DYNAMO_TABLE"`
	DynamoEndpoint string `envconfig:"DYNAMO_ENDPOINT"`
	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	SQSEndpoint    string `envconfig:"SQS_ENDPOINT"`
	Region         string `envconfig:"REGION" default:"us-east-1"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
}

func (c *Config) flags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Backend, "backend", "b", "", "Backend of the event store: memory, bolt, sql or dynamo.")
	fs.StringVar(&c.BoltPath, "boltPath", "", "Path of the bolt database file.")
	fs.StringVar(&c.SQLDriver, "sqlDriver", "", "SQL driver: sqlite3 or mysql.")
	fs.StringVar(&c.SQLDSN, "sqlDSN", "", "SQL data source name.")
	fs.StringVar(&c.DynamoTable, "dynamoTable", "", "DynamoDB table name.")
	fs.StringVar(&c.DynamoEndpoint, "dynamoEndpoint", "", "DynamoDB endpoint, e.g. a local instance.")
	fs.StringVar(&c.S3Bucket, "s3Bucket", "", "S3 bucket of snapshots; snapshots stay in the backend if empty.")
	fs.StringVar(&c.S3Endpoint, "s3Endpoint", "", "S3 endpoint, e.g. a local instance.")
	fs.StringVar(&c.SQSEndpoint, "sqsEndpoint", "", "SQS endpoint, e.g. a local instance.")
	fs.StringVar(&c.Region, "region", "", "AWS region.")
	fs.StringVar(&c.LogLevel, "logLevel", "", "Log level: debug, info, warn or error.")
}

// load reads the environment, then applies the flags set on the command line.
func (c *Config) load(fs *pflag.FlagSet) error {
	var env Config
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return err
	}
	for _, f := range []struct {
		flag string
		dst  *string
		env  string
	}{
		{"backend", &c.Backend, env.Backend},
		{"boltPath", &c.BoltPath, env.BoltPath},
		{"sqlDriver", &c.SQLDriver, env.SQLDriver},
		{"sqlDSN", &c.SQLDSN, env.SQLDSN},
		{"dynamoTable", &c.DynamoTable, env.DynamoTable},
		{"dynamoEndpoint", &c.DynamoEndpoint, env.DynamoEndpoint},
		{"s3Bucket", &c.S3Bucket, env.S3Bucket},
		{"s3Endpoint", &c.S3Endpoint, env.S3Endpoint},
		{"sqsEndpoint", &c.SQSEndpoint, env.SQSEndpoint},
		{"region", &c.Region, env.Region},
		{"logLevel", &c.LogLevel, env.LogLevel},
	} {
		if !fs.Changed(f.flag) {
			*f.dst = f.env
		}
	}
	return c.validate()
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory, BackendBolt:
	case BackendSQL:
		if c.SQLDSN == "" {
			return fmt.Errorf("missing SQL data source name for backend %s", c.Backend)
		}
	case BackendDynamo:
		if c.DynamoTable == "" {
			return fmt.Errorf("missing DynamoDB table for backend %s", c.Backend)
		}
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	return nil
}
