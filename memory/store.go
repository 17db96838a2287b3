package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ln80/eventstorage/event"
)

type store struct {
	mu sync.RWMutex

	db map[string][]event.SerializedDomainData
	// seqs map is used to check the uniqueness of (aggregate, sequence) pairs
	seqs map[string]map[uint64]struct{}
	// global log, position i holds the token i+1
	global    []event.SerializedTrackedData
	snapshots map[string]event.SerializedDomainData
}

var (
	_ event.Backend = &store{}
)

// NewBackend returns an in-memory backend, mainly used for tests.
func NewBackend() event.Backend {
	return &store{
		db:        make(map[string][]event.SerializedDomainData),
		seqs:      make(map[string]map[uint64]struct{}),
		global:    make([]event.SerializedTrackedData, 0),
		snapshots: make(map[string]event.SerializedDomainData),
	}
}

func (s *store) AppendEventData(ctx context.Context, data ...event.SerializedDomainData) error {
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// check the whole batch first, so that nothing is written on conflict
	batch := make(map[string]map[uint64]struct{})
	for _, d := range data {
		if _, ok := s.seqs[d.AggregateID][d.Sequence]; ok {
			return event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence)
		}
		if _, ok := batch[d.AggregateID][d.Sequence]; ok {
			return event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence)
		}
		if _, ok := batch[d.AggregateID]; !ok {
			batch[d.AggregateID] = make(map[uint64]struct{})
		}
		batch[d.AggregateID][d.Sequence] = struct{}{}
	}

	for _, d := range data {
		if _, ok := s.seqs[d.AggregateID]; !ok {
			s.seqs[d.AggregateID] = make(map[uint64]struct{})
		}
		s.seqs[d.AggregateID][d.Sequence] = struct{}{}
		s.db[d.AggregateID] = append(s.db[d.AggregateID], d)
		s.global = append(s.global, event.SerializedTrackedData{
			SerializedDomainData: d,
			Token:                event.GlobalToken(len(s.global) + 1),
		})
	}
	for aggID := range batch {
		evts := s.db[aggID]
		sort.SliceStable(evts, func(i, j int) bool {
			return evts[i].Sequence < evts[j].Sequence
		})
	}
	return nil
}

func (s *store) ReadEventData(ctx context.Context, aggID string, firstSeq uint64) (event.Iterator[event.SerializedDomainData], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evts := s.db[aggID]
	idx := sort.Search(len(evts), func(i int) bool {
		return evts[i].Sequence >= firstSeq
	})
	cp := make([]event.SerializedDomainData, len(evts)-idx)
	copy(cp, evts[idx:])
	return event.SliceIterator(cp), nil
}

func (s *store) ReadTrackedEventData(ctx context.Context, after event.TrackingToken) (event.Iterator[event.SerializedTrackedData], error) {
	pos, err := event.PositionOf(after)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if uint64(pos) >= uint64(len(s.global)) {
		return event.EmptyIterator[event.SerializedTrackedData](), nil
	}
	cp := make([]event.SerializedTrackedData, len(s.global)-int(pos))
	copy(cp, s.global[pos:])
	return event.SliceIterator(cp), nil
}

func (s *store) StoreSnapshotData(ctx context.Context, data event.SerializedDomainData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if curr, ok := s.snapshots[data.AggregateID]; ok && curr.Sequence > data.Sequence {
		return nil
	}
	s.snapshots[data.AggregateID] = data
	return nil
}

func (s *store) ReadSnapshotData(ctx context.Context, aggID string) (event.SerializedDomainData, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[aggID]
	return snap, ok, nil
}
