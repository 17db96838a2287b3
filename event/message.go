package event

import (
	"context"
	"time"
)

// DomainMessage wraps a domain event with the identity of the aggregate it belongs to.
// The pair (AggregateID, Sequence) is unique, and ID is unique across all aggregates.
type DomainMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	Sequence      uint64
	At            time.Time
	Payload       interface{}
	Metadata      map[string]string
}

// TrackedMessage is a message read from the global log together with its position.
type TrackedMessage struct {
	DomainMessage
	Token TrackingToken
}

type MessageOption func(msg *DomainMessage)

// WithAt overrides the default timestamp of the message.
func WithAt(t time.Time) MessageOption {
	return func(msg *DomainMessage) {
		msg.At = t
	}
}

// WithMetadata merges the given entries into the message metadata.
func WithMetadata(md map[string]string) MessageOption {
	return func(msg *DomainMessage) {
		if len(md) == 0 {
			return
		}
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			msg.Metadata[k] = v
		}
	}
}

// NewDomainMessage returns a message with a fresh ID and a UTC timestamp.
func NewDomainMessage(aggType, aggID string, seq uint64, payload interface{}, opts ...MessageOption) DomainMessage {
	msg := DomainMessage{
		ID:            UID().String(),
		AggregateType: aggType,
		AggregateID:   aggID,
		Sequence:      seq,
		At:            time.Now().UTC(),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&msg)
	}
	return msg
}

// Envelop wraps (with options) the given events into consecutive domain messages,
// starting at the firstSeq sequence number. Nil events are skipped and do not consume a sequence.
// The user found in the context, if any, is recorded in the metadata.
func Envelop(ctx context.Context, aggType, aggID string, firstSeq uint64, evts []interface{}, opts ...MessageOption) []DomainMessage {
	msgs := make([]DomainMessage, 0, len(evts))
	seq := firstSeq
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		msgOpts := opts
		if user, ok := ctx.Value(ContextUserKey).(string); ok && user != "" {
			msgOpts = append([]MessageOption{WithMetadata(map[string]string{MetadataUserKey: user})}, opts...)
		}
		msgs = append(msgs, NewDomainMessage(aggType, aggID, seq, evt, msgOpts...))
		seq++
	}
	return msgs
}

// Events unwraps the given messages and returns their payloads.
func Events(msgs []DomainMessage) []interface{} {
	evts := make([]interface{}, len(msgs))
	for i, msg := range msgs {
		evts[i] = msg.Payload
	}
	return evts
}
