package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ln80/eventstorage/event"
)

const (
	eventPrefix    = "evt#"
	snapshotPrefix = "snap#"
	globalKey      = "global"

	counterHashKey  = "internal"
	counterRangeKey = "counter"
	counterAttr     = "gpos"

	snapshotRangeKey = "snapshot"
)

// MaxBatchSize is the largest batch appended in a single transaction:
// each event takes two items next to the global counter update.
const MaxBatchSize = (maxTxItems - 1) / 2

// record is the item form of a serialized envelope.
// Events are kept twice: once in the aggregate partition and once in the global partition.
type record struct {
	Item
	EventID  string            `dynamodbav:"id"`
	AggType  string            `dynamodbav:"aggType"`
	AggID    string            `dynamodbav:"aggID"`
	Seq      uint64            `dynamodbav:"seq"`
	At       int64             `dynamodbav:"at"`
	Metadata map[string]string `dynamodbav:"meta,omitempty"`
	Type     string            `dynamodbav:"type"`
	Rev      string            `dynamodbav:"rev,omitempty"`
	Data     []byte            `dynamodbav:"data"`
	Pos      uint64            `dynamodbav:"gpos,omitempty"`
}

func recordOf(d event.SerializedDomainData) record {
	return record{
		EventID:  d.EventID,
		AggType:  d.AggregateType,
		AggID:    d.AggregateID,
		Seq:      d.Sequence,
		At:       d.At.UnixNano(),
		Metadata: d.Metadata,
		Type:     d.Payload.Type.Name,
		Rev:      d.Payload.Type.Revision,
		Data:     d.Payload.Data,
	}
}

func (r record) domainData() event.SerializedDomainData {
	return event.SerializedDomainData{
		EventID:       r.EventID,
		AggregateType: r.AggType,
		AggregateID:   r.AggID,
		Sequence:      r.Seq,
		At:            time.Unix(0, r.At).UTC(),
		Metadata:      r.Metadata,
		Payload: event.SerializedObject{
			Type: event.SerializedType{Name: r.Type, Revision: r.Rev},
			Data: r.Data,
		},
	}
}

// partialRecord reads what it can of a malformed item, so that the error and the position
// of the item are still known.
func partialRecord(item map[string]types.AttributeValue) record {
	str := func(name string) string {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	num := func(name string) uint64 {
		if v, ok := item[name].(*types.AttributeValueMemberN); ok {
			n, _ := strconv.ParseUint(v.Value, 10, 64)
			return n
		}
		return 0
	}
	return record{
		EventID: str("id"),
		AggType: str("aggType"),
		AggID:   str("aggID"),
		Seq:     num("seq"),
		Type:    str("type"),
		Rev:     str("rev"),
		Pos:     num(counterAttr),
	}
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

type StoreConfig struct {
	// MaxRetries bounds the attempts to append a batch when concurrent appends move the global position.
	MaxRetries int
}

// Store is an event.Backend on top of a single DynamoDB table.
//
// A counter item holds the last global position. Appending a batch updates the counter on the
// condition it did not move since it was read, and puts the event items on the condition they don't
// exist, all in one transaction. Global positions are hence dense and follow the commit order.
type Store struct {
	svc   ClientAPI
	table string
	cfg   *StoreConfig
}

var _ event.Backend = &Store{}

// NewBackend returns a backend using the given table. The table must have the (_pk, _sk) string key schema,
// see CreateTable.
func NewBackend(svc ClientAPI, table string, opts ...func(cfg *StoreConfig)) *Store {
	if svc == nil {
		panic("eventstorage: nil dynamodb client")
	}
	cfg := &StoreConfig{MaxRetries: 10}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Store{
		svc:   svc,
		table: table,
		cfg:   cfg,
	}
}

func (s *Store) counterKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		HashKey:  &types.AttributeValueMemberS{Value: counterHashKey},
		RangeKey: &types.AttributeValueMemberS{Value: counterRangeKey},
	}
}

func (s *Store) lastPosition(ctx context.Context) (uint64, error) {
	out, err := s.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.counterKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	if out.Item == nil {
		return 0, nil
	}
	var counter struct {
		Pos uint64 `dynamodbav:"gpos"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return 0, err
	}
	return counter.Pos, nil
}

func (s *Store) AppendEventData(ctx context.Context, data ...event.SerializedDomainData) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) > MaxBatchSize {
		return event.Err(event.ErrInvalidBatch, data[0].AggregateID, "size", len(data), "max", MaxBatchSize)
	}

	// a transaction can't touch the same item twice
	seen := make(map[string]struct{}, len(data))
	for _, d := range data {
		k := d.AggregateID + "/" + seqKey(d.Sequence)
		if _, ok := seen[k]; ok {
			return event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence)
		}
		seen[k] = struct{}{}
	}

	var err error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		var retry bool
		retry, err = s.tryAppend(ctx, data)
		if !retry {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return event.Unavailable(err, data[0].AggregateID, "attempts", s.cfg.MaxRetries)
}

// tryAppend runs one append transaction. It reports whether the transaction lost a race on the counter
// and may be retried.
func (s *Store) tryAppend(ctx context.Context, data []event.SerializedDomainData) (bool, error) {
	prev, err := s.lastPosition(ctx)
	if err != nil {
		return false, event.Unavailable(err, data[0].AggregateID)
	}
	next := prev + uint64(len(data))

	var cond expression.ConditionBuilder
	if prev == 0 {
		cond = expression.AttributeNotExists(expression.Name(counterAttr))
	} else {
		cond = expression.Name(counterAttr).Equal(expression.Value(prev))
	}
	counterExpr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name(counterAttr), expression.Value(next))).
		WithCondition(cond).
		Build()
	if err != nil {
		return false, err
	}
	putExpr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(HashKey))).
		Build()
	if err != nil {
		return false, err
	}

	ses := NewSession(s.svc)
	if err := ses.StartTx(); err != nil {
		return false, err
	}
	defer ses.CloseTx()

	if err := ses.Update(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.counterKey(),
		UpdateExpression:          counterExpr.Update(),
		ConditionExpression:       counterExpr.Condition(),
		ExpressionAttributeNames:  counterExpr.Names(),
		ExpressionAttributeValues: counterExpr.Values(),
	}); err != nil {
		return false, err
	}

	for i, d := range data {
		pos := prev + uint64(i) + 1

		rec := recordOf(d)
		rec.Item = Item{HashKey: eventPrefix + d.AggregateID, RangeKey: seqKey(d.Sequence)}
		rec.Pos = pos
		evtItem, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return false, event.Err(event.ErrSerialization, d.AggregateID, "seq", d.Sequence, "err", err)
		}
		rec.Item = Item{HashKey: globalKey, RangeKey: event.GlobalToken(pos).String()}
		globalItem, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return false, event.Err(event.ErrSerialization, d.AggregateID, "seq", d.Sequence, "err", err)
		}

		for _, item := range []map[string]types.AttributeValue{evtItem, globalItem} {
			if err := ses.Put(ctx, &dynamodb.PutItemInput{
				TableName:                 aws.String(s.table),
				Item:                      item,
				ConditionExpression:       putExpr.Condition(),
				ExpressionAttributeNames:  putExpr.Names(),
				ExpressionAttributeValues: putExpr.Values(),
			}); err != nil {
				return false, err
			}
		}
	}

	err = ses.CommitTx(ctx)
	if err == nil {
		return false, nil
	}
	switch classifyTxFailure(err) {
	case txConflict:
		d := conflictingData(err, data)
		return false, event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence)
	case txRetry:
		return true, err
	}
	return false, event.Unavailable(err, data[0].AggregateID)
}

// conflictingData finds the entry whose item failed its condition.
// Transaction items are ordered as: counter, then an event item and a global item per entry.
func conflictingData(err error, data []event.SerializedDomainData) event.SerializedDomainData {
	for i, code := range cancellationCodes(err) {
		if i > 0 && code == reasonConditionalCheckFailed {
			if idx := (i - 1) / 2; idx < len(data) {
				return data[idx]
			}
		}
	}
	return data[0]
}

func (s *Store) query(ctx context.Context, pk string, from expression.KeyConditionBuilder) (*dynamodb.QueryPaginator, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(HashKey).Equal(expression.Value(pk)).And(from)).
		Build()
	if err != nil {
		return nil, err
	}
	return dynamodb.NewQueryPaginator(s.svc, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}), nil
}

func (s *Store) ReadEventData(ctx context.Context, aggID string, firstSeq uint64) (event.Iterator[event.SerializedDomainData], error) {
	p, err := s.query(ctx, eventPrefix+aggID, expression.Key(RangeKey).GreaterThanEqual(expression.Value(seqKey(firstSeq))))
	if err != nil {
		return nil, event.Unavailable(err, aggID)
	}
	return &iterator[event.SerializedDomainData]{
		ctx:       ctx,
		paginator: p,
		aggID:     aggID,
		decode: func(r record) event.SerializedDomainData {
			return r.domainData()
		},
	}, nil
}

func (s *Store) ReadTrackedEventData(ctx context.Context, after event.TrackingToken) (event.Iterator[event.SerializedTrackedData], error) {
	pos, err := event.PositionOf(after)
	if err != nil {
		return nil, err
	}
	p, err := s.query(ctx, globalKey, expression.Key(RangeKey).GreaterThan(expression.Value(pos.String())))
	if err != nil {
		return nil, event.Unavailable(err, "")
	}
	return &iterator[event.SerializedTrackedData]{
		ctx:       ctx,
		paginator: p,
		decode: func(r record) event.SerializedTrackedData {
			return event.SerializedTrackedData{
				SerializedDomainData: r.domainData(),
				Token:                event.GlobalToken(r.Pos),
			}
		},
	}, nil
}

func (s *Store) snapshotKey(aggID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		HashKey:  &types.AttributeValueMemberS{Value: snapshotPrefix + aggID},
		RangeKey: &types.AttributeValueMemberS{Value: snapshotRangeKey},
	}
}

// StoreSnapshotData puts the snapshot unless a snapshot with a higher sequence is already stored.
func (s *Store) StoreSnapshotData(ctx context.Context, data event.SerializedDomainData) error {
	rec := recordOf(data)
	rec.Item = Item{HashKey: snapshotPrefix + data.AggregateID, RangeKey: snapshotRangeKey}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return event.Err(event.ErrSerialization, data.AggregateID, "seq", data.Sequence, "err", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(
			expression.AttributeNotExists(expression.Name(HashKey)).
				Or(expression.Name("seq").LessThanEqual(expression.Value(data.Sequence))),
		).
		Build()
	if err != nil {
		return event.Unavailable(err, data.AggregateID)
	}

	if _, err := s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}); err != nil {
		if IsConditionCheckFailure(err) {
			return nil
		}
		return event.Unavailable(err, data.AggregateID, "seq", data.Sequence)
	}
	return nil
}

func (s *Store) ReadSnapshotData(ctx context.Context, aggID string) (event.SerializedDomainData, bool, error) {
	out, err := s.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.snapshotKey(aggID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return event.SerializedDomainData{}, false, event.Unavailable(err, aggID)
	}
	if out.Item == nil {
		return event.SerializedDomainData{}, false, nil
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		d := partialRecord(out.Item).domainData()
		d.AggregateID = aggID
		return event.SerializedDomainData{}, false, event.AsDeserializationError(d, err)
	}
	return rec.domainData(), true, nil
}

// iterator fetches query pages on demand. Items are decoded one at a time, so that a
// malformed item fails alone.
type iterator[T any] struct {
	ctx       context.Context
	paginator *dynamodb.QueryPaginator
	aggID     string
	decode    func(r record) T

	page   []map[string]types.AttributeValue
	idx    int
	cur    T
	curErr error
	err    error
	closed bool
}

func (i *iterator[T]) Next() bool {
	if i.closed {
		return false
	}
	for i.idx >= len(i.page) {
		if !i.paginator.HasMorePages() {
			i.closed = true
			return false
		}
		out, err := i.paginator.NextPage(i.ctx)
		if err != nil {
			i.err = event.Unavailable(err, i.aggID)
			i.closed = true
			return false
		}
		i.page, i.idx = out.Items, 0
	}
	var rec record
	i.curErr = nil
	if err := attributevalue.UnmarshalMap(i.page[i.idx], &rec); err != nil {
		rec = partialRecord(i.page[i.idx])
		i.curErr = event.AsDeserializationError(rec.domainData(), err)
	}
	i.cur = i.decode(rec)
	i.idx++
	return true
}

func (i *iterator[T]) Value() (T, error) {
	return i.cur, i.curErr
}

func (i *iterator[T]) Err() error {
	return i.err
}

func (i *iterator[T]) Close() error {
	i.closed = true
	i.page = nil
	return nil
}
