package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/json"
)

const (
	// SQS size Msg Limit is 256 KB.
	// 6KB for meta-data + safety margin
	MsgSizeLimit = 256000 // 250 KB

	// SQS size Msg Batch Limit is 256 KB.
	// 6KB for meta-data + safety margin
	MsgBatchSizeLimit = 256000 // 250 KB

	// SQS Msg batch entries limit is 10
	MsgBatchEntriesLimit = 10
)

var (
	ErrNoQueue                    = errors.New("no destination queue")
	ErrPublishEventFailed         = errors.New("publish events failed")
	ErrPublishInvalidMsgSizeLimit = errors.New("publish failed, message exceeds size limit")
)

type ForwarderConfig struct {
	// Serializer encodes the payloads of forwarded messages.
	Serializer event.Serializer
	// Limit bounds the number of messages forwarded by a single call; zero means no limit.
	// The messages split from one envelope are forwarded together, even past the limit.
	Limit int
	// MaxAttempts bounds the sends of a batch whose entries partially failed.
	MaxAttempts int
	Logger      zerolog.Logger
}

// Forwarder publishes the global event log to FIFO queues, so that projections can consume it.
//
// Messages of an aggregate share a message group, and the event ID is the deduplication ID:
// forwarding the same range twice within the deduplication window is harmless. Messages split
// from one envelope get the ordinal of the message appended to their deduplication ID.
type Forwarder struct {
	reader event.TrackedReader
	svc    ClientAPI
	queues []string
	cfg    *ForwarderConfig
}

// NewForwarder returns a forwarder of the messages read from reader to every given queue URL.
func NewForwarder(reader event.TrackedReader, svc ClientAPI, queues []string, opts ...func(cfg *ForwarderConfig)) *Forwarder {
	if reader == nil {
		panic("eventstorage: nil tracked reader")
	}
	if svc == nil {
		panic("eventstorage: nil SQS client")
	}
	cfg := &ForwarderConfig{
		Serializer:  json.NewSerializer(""),
		MaxAttempts: 5,
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return &Forwarder{
		reader: reader,
		svc:    svc,
		queues: queues,
		cfg:    cfg,
	}
}

// Forward publishes the messages positioned after the given token and returns the token of the last
// forwarded one, to be passed to the next call. It returns the given token if nothing was forwarded.
//
// Messages that fail to deserialize are logged and skipped. On failure, the returned token still
// tells how far forwarding went. The token only advances past an envelope once all of its messages
// are published, and Limit never stops forwarding in the middle of an envelope.
func (f *Forwarder) Forward(ctx context.Context, after event.TrackingToken) (last event.TrackingToken, err error) {
	last = after
	if len(f.queues) == 0 {
		return last, ErrNoQueue
	}

	it := f.reader.ReadTrackedEvents(ctx, after)
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var (
		entries   = make([]types.SendMessageBatchRequestEntry, 0, MsgBatchEntriesLimit)
		totalSize int
		// prev is the token of the last read message, and closed the token of the last
		// envelope whose messages were all read. Messages split from one envelope share a token.
		prev    event.TrackingToken
		closed  = after
		ordinal int
		count   int
	)
	flush := func() error {
		if len(entries) > 0 {
			if err := f.publish(ctx, entries); err != nil {
				return err
			}
			entries = make([]types.SendMessageBatchRequestEntry, 0, MsgBatchEntriesLimit)
			totalSize = 0
		}
		last = closed
		return nil
	}

	for it.Next() {
		msg, err := it.Value()
		if prev != nil && sameToken(msg.Token, prev) {
			ordinal++
		} else {
			if prev != nil {
				closed = prev
			}
			if f.cfg.Limit > 0 && count >= f.cfg.Limit {
				break
			}
			if len(entries) == 0 {
				last = closed
			}
			ordinal = 0
		}
		prev = msg.Token

		if err != nil {
			if !errors.Is(err, event.ErrDeserialization) {
				return last, err
			}
			f.cfg.Logger.Warn().
				Err(err).
				Str("aggregate", msg.AggregateID).
				Uint64("seq", msg.Sequence).
				Msg("skip message")
			continue
		}

		entry, size, err := f.entry(msg, ordinal)
		if err != nil {
			return last, err
		}
		if totalSize+size > MsgBatchSizeLimit {
			if err := flush(); err != nil {
				return last, err
			}
		}
		entry.Id = aws.String(strconv.Itoa(len(entries)))
		entries = append(entries, entry)
		totalSize += size
		if len(entries) == MsgBatchEntriesLimit {
			if err := flush(); err != nil {
				return last, err
			}
		}
		count++
	}
	if err := it.Err(); err != nil {
		return last, err
	}
	if prev != nil {
		closed = prev
	}
	if err := flush(); err != nil {
		return last, err
	}
	return last, nil
}

// sameToken reports whether both tokens mark the same position.
func sameToken(a, b event.TrackingToken) bool {
	return a != nil && b != nil && !a.After(b) && !b.After(a)
}

// dedupID returns the event ID, suffixed with the ordinal of the message within its envelope
// when an upcaster split the envelope.
func dedupID(id string, ordinal int) string {
	if ordinal == 0 {
		return id
	}
	return id + "-" + strconv.Itoa(ordinal)
}

func (f *Forwarder) entry(msg event.TrackedMessage, ordinal int) (types.SendMessageBatchRequestEntry, int, error) {
	obj, err := f.cfg.Serializer.Serialize(msg.Payload)
	if err != nil {
		return types.SendMessageBatchRequestEntry{}, 0, event.Err(event.ErrSerialization, msg.AggregateID, "seq", msg.Sequence, "err", err)
	}
	body, err := json.MarshalTracked(event.SerializedTrackedData{
		SerializedDomainData: event.SerializedDomainData{
			EventID:       msg.ID,
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			Sequence:      msg.Sequence,
			At:            msg.At,
			Metadata:      msg.Metadata,
			Payload:       obj,
		},
		Token: msg.Token,
	})
	if err != nil {
		return types.SendMessageBatchRequestEntry{}, 0, err
	}

	size := len(body)
	if size > MsgSizeLimit {
		return types.SendMessageBatchRequestEntry{}, 0, fmt.Errorf("%w: event details: (type: %s, id: %s, size: %d)",
			ErrPublishInvalidMsgSizeLimit, obj.Type, msg.ID, size)
	}

	token := ""
	if msg.Token != nil {
		token = msg.Token.String()
	}
	return types.SendMessageBatchRequestEntry{
		MessageGroupId:         aws.String(msg.AggregateID),
		MessageDeduplicationId: aws.String(dedupID(msg.ID, ordinal)),
		MessageBody:            aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AggID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.AggregateID),
			},
			"Token": {
				DataType:    aws.String("String"),
				StringValue: aws.String(token),
			},
			"Type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(obj.Type.String()),
			},
		},
	}, size, nil
}

// publish sends the batch to every queue concurrently. Each queue receives the batches in order.
func (f *Forwarder) publish(ctx context.Context, entries []types.SendMessageBatchRequestEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range f.queues {
		g.Go(func() error {
			return f.doSendMessageBatch(ctx, &sqs.SendMessageBatchInput{
				Entries:  entries,
				QueueUrl: aws.String(queue),
			})
		})
	}
	return g.Wait()
}

// doSendMessageBatch sends the batch and resends its failed entries, with a linear backoff.
func (f *Forwarder) doSendMessageBatch(ctx context.Context, input *sqs.SendMessageBatchInput) error {
	out, err := f.svc.SendMessageBatch(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishEventFailed, err)
	}

	attempts := 1
	for out != nil && len(out.Failed) > 0 && attempts < f.cfg.MaxAttempts {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPublishEventFailed, ctx.Err())
		case <-time.After(time.Duration(attempts) * 50 * time.Millisecond):
		}
		input = retryInput(input, out.Failed)
		out, err = f.svc.SendMessageBatch(ctx, input)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPublishEventFailed, err)
		}
		attempts++
	}

	if out != nil && len(out.Failed) > 0 {
		return fmt.Errorf("%w: queue: %s, failed entries: %d", ErrPublishEventFailed, aws.ToString(input.QueueUrl), len(out.Failed))
	}
	return nil
}

// retryInput keeps the failed entries only.
func retryInput(input *sqs.SendMessageBatchInput, failed []types.BatchResultErrorEntry) *sqs.SendMessageBatchInput {
	ids := make(map[string]struct{}, len(failed))
	for _, f := range failed {
		ids[aws.ToString(f.Id)] = struct{}{}
	}
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(failed))
	for _, e := range input.Entries {
		if _, ok := ids[aws.ToString(e.Id)]; ok {
			entries = append(entries, e)
		}
	}
	return &sqs.SendMessageBatchInput{
		QueueUrl: input.QueueUrl,
		Entries:  entries,
	}
}
