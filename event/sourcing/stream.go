package sourcing

import (
	"context"

	"github.com/ln80/eventstorage/event"
)

// Stream is a slice of the event stream of an aggregate, from a given sequence onward.
type Stream struct {
	aggID string
	msgs  []event.DomainMessage
	next  uint64
}

// NewStream returns the stream of the given messages; from is the sequence the stream starts at,
// which is also the next sequence if there are no messages.
func NewStream(aggID string, from uint64, msgs []event.DomainMessage) *Stream {
	stm := &Stream{
		aggID: aggID,
		msgs:  msgs,
		next:  from,
	}
	if l := len(msgs); l > 0 {
		stm.next = msgs[l-1].Sequence + 1
	}
	return stm
}

// Envelop wraps the events of an aggregate into a stream that starts at the given sequence.
func Envelop(ctx context.Context, aggType, aggID string, next uint64, evts []interface{}, opts ...event.MessageOption) Stream {
	return *NewStream(aggID, next, event.Envelop(ctx, aggType, aggID, next, evts, opts...))
}

// Next returns the sequence of the event following the stream.
func (s *Stream) Next() uint64 {
	return s.next
}

func (s *Stream) ID() string {
	return s.aggID
}

func (s *Stream) Empty() bool {
	return len(s.msgs) == 0
}

func (s *Stream) Validate() error {
	for _, msg := range s.msgs {
		if msg.AggregateID != s.aggID {
			return event.Err(event.ErrInvalidBatch, s.aggID, "found", msg.AggregateID)
		}
	}
	return event.ValidateBatch(s.msgs)
}

func (s *Stream) Unwrap() []event.DomainMessage {
	return s.msgs
}

// Events returns the payloads of the stream.
func (s *Stream) Events() []interface{} {
	return event.Events(s.msgs)
}
