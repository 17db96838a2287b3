package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrTxAlreadyStarted = errors.New("transaction already started")
)

// maxTxItems is the DynamoDB limit of items per TransactWriteItems call.
const maxTxItems = 100

// Session buffers write operations while a transaction is started, and commits them all at once.
// Outside a transaction, operations are sent right away.
type Session interface {
	CommitTx(ctx context.Context) error
	StartTx() error
	CloseTx() error
	HasTx() bool

	Put(ctx context.Context, p *dynamodb.PutItemInput) error
	Update(ctx context.Context, u *dynamodb.UpdateItemInput) error
}

func NewSession(db ClientAPI) Session {
	return &session{
		svc: db,
	}
}

type session struct {
	svc ClientAPI
	ops []txOp
}

var _ Session = &session{}

func (s *session) StartTx() error {
	if s.ops == nil {
		s.ops = []txOp{}
		return nil
	}
	return ErrTxAlreadyStarted
}

func (s *session) HasTx() bool {
	return s.ops != nil
}

func (s *session) CloseTx() error {
	s.ops = nil
	return nil
}

// CommitTx sends the buffered operations. A single operation is sent as a plain write.
// The transaction is closed whatever the outcome.
func (s *session) CommitTx(ctx context.Context) (err error) {
	defer s.CloseTx()

	count := len(s.ops)
	if count == 0 {
		return
	}
	if count > maxTxItems {
		return errors.New("too many transaction items")
	}

	if count == 1 {
		op := s.ops[0]
		if op.put != nil {
			_, err = s.svc.PutItem(ctx, op.put)
			return
		}
		if op.update != nil {
			_, err = s.svc.UpdateItem(ctx, op.update)
			return
		}
		return
	}

	txItems := make([]types.TransactWriteItem, count)
	for i, op := range s.ops {
		txItems[i] = types.TransactWriteItem{
			Put:    op.putTx(),
			Update: op.updateTx(),
		}
	}
	_, err = s.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: txItems,
	})
	return
}

func (s *session) Put(ctx context.Context, p *dynamodb.PutItemInput) error {
	if s.HasTx() {
		s.ops = append(s.ops, txOp{
			put: p,
		})
		return nil
	}
	if _, err := s.svc.PutItem(ctx, p); err != nil {
		return err
	}
	return nil
}

func (s *session) Update(ctx context.Context, u *dynamodb.UpdateItemInput) error {
	if s.HasTx() {
		s.ops = append(s.ops, txOp{
			update: u,
		})
		return nil
	}
	if _, err := s.svc.UpdateItem(ctx, u); err != nil {
		return err
	}
	return nil
}

type txOp struct {
	put    *dynamodb.PutItemInput
	update *dynamodb.UpdateItemInput
}

func (op *txOp) putTx() *types.Put {
	if op.put == nil {
		return nil
	}
	return &types.Put{
		Item:                      op.put.Item,
		TableName:                 op.put.TableName,
		ConditionExpression:       op.put.ConditionExpression,
		ExpressionAttributeNames:  op.put.ExpressionAttributeNames,
		ExpressionAttributeValues: op.put.ExpressionAttributeValues,
	}
}

func (op *txOp) updateTx() *types.Update {
	if op.update == nil {
		return nil
	}
	return &types.Update{
		Key:                       op.update.Key,
		UpdateExpression:          op.update.UpdateExpression,
		TableName:                 op.update.TableName,
		ConditionExpression:       op.update.ConditionExpression,
		ExpressionAttributeNames:  op.update.ExpressionAttributeNames,
		ExpressionAttributeValues: op.update.ExpressionAttributeValues,
	}
}
