package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestTable(t *testing.T) {
	withTable(t, dbsvc, func(table string) {
		ctx := context.Background()

		out, err := dbsvc.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table),
		})
		if err != nil {
			t.Fatalf("expect describe table, got err: %v", err)
		}
		if want, val := types.TableStatusActive, out.Table.TableStatus; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}

		keys := map[string]types.KeyType{}
		for _, k := range out.Table.KeySchema {
			keys[aws.ToString(k.AttributeName)] = k.KeyType
		}
		if want, val := types.KeyTypeHash, keys[HashKey]; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}
		if want, val := types.KeyTypeRange, keys[RangeKey]; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}

		// creating an existing table fails
		if err := CreateTable(ctx, dbsvc, table); err == nil {
			t.Fatal("expect err, got nil")
		}
	})
}
