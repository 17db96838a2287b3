package eventstorage

import (
	"github.com/ln80/eventstorage/engine"
	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/memory"
)

type composite struct {
	event.EventBackend
	event.SnapshotBackend
}

// interface guard
var _ event.Backend = &composite{}

// Compose returns a backend that stores events and snapshots in separate backends,
// e.g. events in DynamoDB and snapshots in S3.
// It panics if any of the backends is nil.
func Compose(events event.EventBackend, snapshots event.SnapshotBackend) event.Backend {
	if events == nil || snapshots == nil {
		panic("eventstorage: nil backend")
	}
	return &composite{
		EventBackend:    events,
		SnapshotBackend: snapshots,
	}
}

// NewInMemory returns a storage engine on top of an in-memory backend, mainly used for tests.
func NewInMemory(opts ...engine.Option) *engine.Engine {
	return engine.New(memory.NewBackend(), opts...)
}
