package event

import (
	"context"
)

// Store is the storage engine seen by the domain layer: typed messages in, lazy typed streams out.
type Store interface {
	// AppendEvents stores the messages atomically. It fails with ErrConcurrencyConflict if one of them
	// reuses an (AggregateID, Sequence) pair, and with ErrInvalidBatch if the batch is malformed.
	AppendEvents(ctx context.Context, msgs ...DomainMessage) error
	// StoreSnapshot stores the aggregate state; an older snapshot never replaces a newer one.
	StoreSnapshot(ctx context.Context, snapshot DomainMessage) error
	AggregateReader
	TrackedReader
	// ReadSnapshot returns the newest snapshot of the aggregate, if any.
	ReadSnapshot(ctx context.Context, aggID string) (DomainMessage, bool, error)
}

// AggregateReader reads the event stream of a single aggregate.
type AggregateReader interface {
	ReadEvents(ctx context.Context, aggID string, firstSeq uint64) Iterator[DomainMessage]
}

// TrackedReader reads the global event log, resuming after the given token.
type TrackedReader interface {
	ReadTrackedEvents(ctx context.Context, after TrackingToken) Iterator[TrackedMessage]
}
