package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestTx_Session(t *testing.T) {
	ctx := context.Background()

	svc := &fakeClient{}
	ses := NewSession(svc)
	if ses == nil {
		t.Fatal("expect session be not nil")
	}

	if err := ses.StartTx(); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if wanterr, err := ErrTxAlreadyStarted, ses.StartTx(); !errors.Is(err, wanterr) {
		t.Fatalf("expect err be %v, got %v", wanterr, err)
	}
	if ok := ses.HasTx(); !ok {
		t.Fatal("expect sesssion has active tx")
	}
	if err := ses.CloseTx(); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	// test we can close twice
	if err := ses.CloseTx(); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if ok := ses.HasTx(); ok {
		t.Fatal("expect sesssion does not have active tx")
	}

	// a single buffered op is sent as a plain write
	ses.StartTx()
	ses.Put(ctx, &dynamodb.PutItemInput{TableName: aws.String("table")})
	if err := ses.CommitTx(ctx); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if want, got := 1, svc.puts; want != got {
		t.Fatalf("expect %v, %v be equals", want, got)
	}
	if want, got := 0, len(svc.txs); want != got {
		t.Fatalf("expect %v, %v be equals", want, got)
	}

	// many ops are sent in a transaction
	ses.StartTx()
	ses.Put(ctx, &dynamodb.PutItemInput{TableName: aws.String("table")})
	ses.Update(ctx, &dynamodb.UpdateItemInput{TableName: aws.String("table")})
	if want, got := 1, svc.puts; want != got {
		t.Fatalf("expect %v, %v be equals", want, got)
	}
	if err := ses.CommitTx(ctx); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if want, got := 1, len(svc.txs); want != got {
		t.Fatalf("expect %v, %v be equals", want, got)
	}
	items := svc.txs[0].TransactItems
	if items[0].Put == nil || items[1].Update == nil {
		t.Fatalf("expect put then update items, got %+v", items)
	}
	if ses.HasTx() {
		t.Fatal("expect tx is closed")
	}
}

func TestTx_Operations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping tx operation test")
	}
	ctx := context.Background()

	type TestItem struct {
		Item
		Val string `dynamodbav:"val"`
	}

	withTable(t, dbsvc, func(table string) {
		ses := NewSession(dbsvc)

		ses.StartTx()

		for _, sk := range []string{"0", "1"} {
			mitem, _ := attributevalue.MarshalMap(TestItem{
				Item: Item{
					HashKey:  "abc",
					RangeKey: sk,
				},
			})
			if err := ses.Put(ctx, &dynamodb.PutItemInput{
				Item:      mitem,
				TableName: aws.String(table),
			}); err != nil {
				t.Fatalf("expect err be nil, got %v", err)
			}
		}

		queryFn := func() (*dynamodb.QueryOutput, error) {
			expr, err := expression.
				NewBuilder().
				WithKeyCondition(
					expression.Key(HashKey).
						Equal(expression.Value("abc")),
				).
				Build()
			if err != nil {
				t.Fatalf("expect err be nil, got %v", err)
			}
			return dbsvc.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(table),
				KeyConditionExpression:    expr.KeyCondition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ConsistentRead:            aws.Bool(true),
			})
		}

		out, err := queryFn()
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if out.Count != 0 {
			t.Fatalf("expect get items count be %d, got %d", 0, out.Count)
		}

		if err := ses.CommitTx(ctx); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		// we can commit twice without issues
		if err := ses.CommitTx(ctx); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}

		out, err = queryFn()
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if out.Count != 2 {
			t.Fatalf("expect get items count be %d, got %d", 2, out.Count)
		}

		// a failed condition cancels the whole transaction
		ses.StartTx()
		expr, _ := expression.NewBuilder().
			WithUpdate(expression.Set(expression.Name("val"), expression.Value("updated"))).
			Build()
		ses.Update(ctx, &dynamodb.UpdateItemInput{
			Key: map[string]types.AttributeValue{
				HashKey:  &types.AttributeValueMemberS{Value: "abc"},
				RangeKey: &types.AttributeValueMemberS{Value: "0"},
			},
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			TableName:                 aws.String(table),
		})
		mitem, _ := attributevalue.MarshalMap(TestItem{Item: Item{HashKey: "abc", RangeKey: "1"}})
		cond, _ := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name(HashKey))).
			Build()
		ses.Put(ctx, &dynamodb.PutItemInput{
			Item:                      mitem,
			TableName:                 aws.String(table),
			ConditionExpression:       cond.Condition(),
			ExpressionAttributeNames:  cond.Names(),
			ExpressionAttributeValues: cond.Values(),
		})
		if err := ses.CommitTx(ctx); !IsConditionCheckFailure(err) {
			t.Fatalf("expect condition check failure, got %v", err)
		}

		out, err = queryFn()
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		items := []TestItem{}
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		for _, item := range items {
			if item.Val != "" {
				t.Fatalf("expect item not updated, got %v", item)
			}
		}
	})
}
