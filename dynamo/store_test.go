package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/internal/testutil"
)

type fakeClient struct {
	ClientAPI

	pos   uint64
	gets  int
	puts  int
	txs   []*dynamodb.TransactWriteItemsInput
	txErr func(attempt int) error
	// item is returned by GetItem in place of the counter when set.
	item map[string]types.AttributeValue
	// items is the single page returned by Query.
	items []map[string]types.AttributeValue
}

func (c *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{Items: c.items, Count: int32(len(c.items))}, nil
}

func (c *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.gets++
	if c.item != nil {
		return &dynamodb.GetItemOutput{Item: c.item}, nil
	}
	if c.pos == 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	item, _ := attributevalue.MarshalMap(map[string]uint64{counterAttr: c.pos})
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (c *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.puts++
	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.txs = append(c.txs, params)
	if c.txErr != nil {
		if err := c.txErr(len(c.txs)); err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, code := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(code)}
	}
	return &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled"),
		CancellationReasons: reasons,
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	withTable(t, dbsvc, func(table string) {
		testutil.BackendTest(t, ctx, NewBackend(dbsvc, table))
	})
}

func TestStore_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("transaction items", func(t *testing.T) {
		svc := &fakeClient{pos: 5}
		store := NewBackend(svc, "table")
		if err := store.AppendEventData(ctx, testutil.GenData("agg-1", 1, 2)...); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if want, got := 1, len(svc.txs); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		items := svc.txs[0].TransactItems
		if want, got := 5, len(items); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		if items[0].Update == nil {
			t.Fatal("expect counter update be the first item")
		}
		var rec record
		if err := attributevalue.UnmarshalMap(items[4].Put.Item, &rec); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if want, got := (Item{HashKey: globalKey, RangeKey: event.GlobalToken(7).String()}), rec.Item; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		if want, got := uint64(7), rec.Pos; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("retry when global position moved", func(t *testing.T) {
		svc := &fakeClient{
			txErr: func(attempt int) error {
				if attempt == 1 {
					return canceled(reasonConditionalCheckFailed, "None", "None")
				}
				return nil
			},
		}
		store := NewBackend(svc, "table")
		if err := store.AppendEventData(ctx, testutil.GenData("agg-1", 1, 1)...); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if want, got := 2, len(svc.txs); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		if want, got := 2, svc.gets; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("give up after max retries", func(t *testing.T) {
		svc := &fakeClient{
			txErr: func(attempt int) error {
				return canceled(reasonTransactionConflict, "None", "None")
			},
		}
		store := NewBackend(svc, "table", func(cfg *StoreConfig) {
			cfg.MaxRetries = 3
		})
		err := store.AppendEventData(ctx, testutil.GenData("agg-1", 1, 1)...)
		if !errors.Is(err, event.ErrStorageUnavailable) {
			t.Fatalf("expect err be %v, got %v", event.ErrStorageUnavailable, err)
		}
		if want, got := 3, len(svc.txs); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("conflict on event item", func(t *testing.T) {
		svc := &fakeClient{
			txErr: func(attempt int) error {
				return canceled("None", "None", "None", reasonConditionalCheckFailed, "None")
			},
		}
		store := NewBackend(svc, "table")
		err := store.AppendEventData(ctx, testutil.GenData("agg-1", 1, 2)...)
		if !errors.Is(err, event.ErrConcurrencyConflict) {
			t.Fatalf("expect err be %v, got %v", event.ErrConcurrencyConflict, err)
		}
		if want, got := 1, len(svc.txs); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("duplicate within batch", func(t *testing.T) {
		svc := &fakeClient{}
		store := NewBackend(svc, "table")
		data := testutil.GenData("agg-1", 1, 1)
		err := store.AppendEventData(ctx, append(data, data[0])...)
		if !errors.Is(err, event.ErrConcurrencyConflict) {
			t.Fatalf("expect err be %v, got %v", event.ErrConcurrencyConflict, err)
		}
		if want, got := 0, len(svc.txs); want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("batch too large", func(t *testing.T) {
		svc := &fakeClient{}
		store := NewBackend(svc, "table")
		err := store.AppendEventData(ctx, testutil.GenData("agg-1", 1, MaxBatchSize+1)...)
		if !errors.Is(err, event.ErrInvalidBatch) {
			t.Fatalf("expect err be %v, got %v", event.ErrInvalidBatch, err)
		}
	})
}

func TestStore_MalformedItem(t *testing.T) {
	ctx := context.Background()

	data := testutil.GenData("agg-1", 1, 3)
	items := make([]map[string]types.AttributeValue, len(data))
	for i, d := range data {
		rec := recordOf(d)
		rec.Pos = uint64(i + 1)
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		items[i] = item
	}
	items[1]["seq"] = &types.AttributeValueMemberS{Value: "not a number"}

	t.Run("read events", func(t *testing.T) {
		store := NewBackend(&fakeClient{items: items}, "table")
		it, err := store.ReadTrackedEventData(ctx, nil)
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		defer it.Close()

		count := 0
		for it.Next() {
			d, err := it.Value()
			if count == 1 {
				if !errors.Is(err, event.ErrDeserialization) {
					t.Fatalf("expect err be %v, got %v", event.ErrDeserialization, err)
				}
				if want, got := data[1].EventID, d.EventID; want != got {
					t.Fatalf("expect %v, %v be equals", want, got)
				}
				if want, got := event.TrackingToken(event.GlobalToken(2)), d.Token; want != got {
					t.Fatalf("expect %v, %v be equals", want, got)
				}
			} else {
				if err != nil {
					t.Fatalf("expect err be nil, got %v", err)
				}
				if want, got := event.TrackingToken(event.GlobalToken(count+1)), d.Token; want != got {
					t.Fatalf("expect %v, %v be equals", want, got)
				}
			}
			count++
		}
		if err := it.Err(); err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if want, got := 3, count; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
	})

	t.Run("read snapshot", func(t *testing.T) {
		store := NewBackend(&fakeClient{item: items[1]}, "table")
		_, _, err := store.ReadSnapshotData(ctx, "agg-1")
		if !errors.Is(err, event.ErrDeserialization) {
			t.Fatalf("expect err be %v, got %v", event.ErrDeserialization, err)
		}
		if errors.Is(err, event.ErrStorageUnavailable) {
			t.Fatalf("expect err not be %v", event.ErrStorageUnavailable)
		}
	})
}

func TestClassifyTxFailure(t *testing.T) {
	tcs := []struct {
		err  error
		want txFailure
	}{
		{errors.New("network"), txUnknown},
		{canceled(reasonConditionalCheckFailed, "None"), txRetry},
		{canceled(reasonTransactionConflict, "None"), txRetry},
		{canceled("None", reasonTransactionConflict), txRetry},
		{canceled("None", reasonConditionalCheckFailed), txConflict},
		{canceled(reasonConditionalCheckFailed, reasonConditionalCheckFailed), txConflict},
		{&types.TransactionConflictException{}, txRetry},
		{canceled("None", "ValidationError"), txUnknown},
	}
	for i, tc := range tcs {
		if got := classifyTxFailure(tc.err); got != tc.want {
			t.Fatalf("tc %d: expect %v, %v be equals", i, tc.want, got)
		}
	}
}
