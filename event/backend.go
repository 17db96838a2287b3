package event

import (
	"context"
)

// EventBackend durably stores serialized events. It knows nothing about payload types.
type EventBackend interface {
	// AppendEventData stores the batch atomically: either every entry becomes visible or none does.
	// It fails with ErrConcurrencyConflict if an (AggregateID, Sequence) pair is already taken.
	// The uniqueness check and the insert must form a single indivisible operation.
	AppendEventData(ctx context.Context, data ...SerializedDomainData) error
	// ReadEventData returns the entries of the aggregate from firstSeq onward, by ascending sequence.
	ReadEventData(ctx context.Context, aggID string, firstSeq uint64) (Iterator[SerializedDomainData], error)
	// ReadTrackedEventData returns the entries of the global log positioned after the given token,
	// or all of them if the token is nil, by non-decreasing token order.
	ReadTrackedEventData(ctx context.Context, after TrackingToken) (Iterator[SerializedTrackedData], error)
}

// SnapshotBackend stores serialized snapshots. A snapshot never replaces a newer one.
type SnapshotBackend interface {
	StoreSnapshotData(ctx context.Context, data SerializedDomainData) error
	// ReadSnapshotData returns the snapshot with the highest sequence of the aggregate, if any.
	ReadSnapshotData(ctx context.Context, aggID string) (SerializedDomainData, bool, error)
}

// Backend combines event and snapshot storage.
type Backend interface {
	EventBackend
	SnapshotBackend
}
