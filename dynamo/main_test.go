package dynamo

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// dbsvc is nil unless a test endpoint is provided.
var dbsvc AdminAPI

var rdm = rand.New(rand.NewSource(time.Now().UnixNano()))

func genTableName(prefix string) string {
	now := strconv.FormatInt(time.Now().UnixNano(), 36)
	random := strconv.FormatInt(int64(rdm.Int31()), 36)
	return prefix + "-" + now + "-" + random
}

func awsConfig() (aws.Config, error) {
	return config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("TEST", "TEST", "TEST")),
	)
}

func withTable(t *testing.T, dbsvc AdminAPI, tfn func(table string)) {
	if dbsvc == nil {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}
	ctx := context.Background()

	table := genTableName("tmp-event-table")
	if err := CreateTable(ctx, dbsvc, table); err != nil {
		t.Fatalf("failed to create test event table: %v", err)
	}

	defer func() {
		if err := DeleteTable(ctx, dbsvc, table); err != nil {
			t.Fatalf("failed to clean aka remove test event table: %v", err)
		}
	}()

	tfn(table)
}

func TestMain(m *testing.M) {
	if endpoint := os.Getenv("DYNAMODB_ENDPOINT"); endpoint != "" {
		cfg, err := awsConfig()
		if err != nil {
			panic(err)
		}
		dbsvc = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	os.Exit(m.Run())
}
