package sourcing

import (
	"context"

	"github.com/ln80/eventstorage/event"
)

// Store appends and loads aggregate streams.
type Store interface {
	AppendToStream(ctx context.Context, chunk Stream) error
	// LoadStream loads the stream of the aggregate, from the given sequence if any.
	LoadStream(ctx context.Context, aggID string, from ...uint64) (*Stream, error)
	// LoadSnapshotStream loads the latest snapshot of the aggregate, if any, and the stream that follows it.
	LoadSnapshotStream(ctx context.Context, aggID string) (*event.DomainMessage, *Stream, error)
}

type store struct {
	es event.Store
}

var _ Store = &store{}

func NewStore(es event.Store) Store {
	if es == nil {
		panic("eventstorage: nil event store")
	}
	return &store{es: es}
}

func (s *store) AppendToStream(ctx context.Context, chunk Stream) error {
	if chunk.Empty() {
		return nil
	}
	if err := chunk.Validate(); err != nil {
		return err
	}
	return s.es.AppendEvents(ctx, chunk.Unwrap()...)
}

// LoadStream stops at the first message that can't be read.
func (s *store) LoadStream(ctx context.Context, aggID string, from ...uint64) (*Stream, error) {
	var first uint64
	if len(from) > 0 {
		first = from[0]
	}
	msgs, err := event.Collect(s.es.ReadEvents(ctx, aggID, first))
	if err != nil {
		return nil, err
	}
	return NewStream(aggID, first, msgs), nil
}

func (s *store) LoadSnapshotStream(ctx context.Context, aggID string) (*event.DomainMessage, *Stream, error) {
	snap, ok, err := s.es.ReadSnapshot(ctx, aggID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		stm, err := s.LoadStream(ctx, aggID)
		return nil, stm, err
	}
	stm, err := s.LoadStream(ctx, aggID, snap.Sequence+1)
	if err != nil {
		return nil, nil, err
	}
	return &snap, stm, nil
}
