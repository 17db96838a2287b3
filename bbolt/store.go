package bbolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/json"
)

var (
	eventsBucket    = []byte("events")
	globalBucket    = []byte("global")
	snapshotsBucket = []byte("snapshots")
)

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

type Config struct {
	// Timeout of waiting on the file lock when opening the database.
	Timeout time.Duration
}

// Store is an event.Backend that keeps events and snapshots in a single bbolt file.
//
// Each aggregate has its own bucket keyed by sequence. The global bucket holds a copy
// of every envelope keyed by its position, which is the tracking token.
type Store struct {
	db *bbolt.DB
}

var _ event.Backend = &Store{}

// Open opens the backend found in the given file. If the file is not found it will be created and initialized.
func Open(path string, opts ...func(cfg *Config)) (*Store, error) {
	cfg := &Config{Timeout: time.Second}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, event.Unavailable(err, "", "path", path)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, globalBucket, snapshotsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("could not create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, event.Unavailable(err, "", "path", path)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database. Open iterators must be closed first.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AppendEventData(ctx context.Context, data ...event.SerializedDomainData) error {
	if len(data) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		evtsBucket := tx.Bucket(eventsBucket)
		gBucket := tx.Bucket(globalBucket)

		for _, d := range data {
			aggBucket, err := evtsBucket.CreateBucketIfNotExists([]byte(d.AggregateID))
			if err != nil {
				return err
			}
			key := itob(d.Sequence)
			if aggBucket.Get(key) != nil {
				return event.Err(event.ErrConcurrencyConflict, d.AggregateID, "seq", d.Sequence)
			}

			value, err := json.MarshalEnvelope(d)
			if err != nil {
				return err
			}
			pos, err := gBucket.NextSequence()
			if err != nil {
				return err
			}
			if err := aggBucket.Put(key, value); err != nil {
				return err
			}
			if err := gBucket.Put(itob(pos), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return event.Unavailable(err, data[0].AggregateID)
	}
	return nil
}

func (s *Store) ReadEventData(ctx context.Context, aggID string, firstSeq uint64) (event.Iterator[event.SerializedDomainData], error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, event.Unavailable(err, aggID)
	}
	var cursor *bbolt.Cursor
	if b := tx.Bucket(eventsBucket).Bucket([]byte(aggID)); b != nil {
		cursor = b.Cursor()
	}
	return &iterator[event.SerializedDomainData]{
		tx:     tx,
		cursor: cursor,
		seek:   itob(firstSeq),
		decode: func(k, v []byte) (event.SerializedDomainData, error) {
			return json.UnmarshalEnvelope(v)
		},
	}, nil
}

func (s *Store) ReadTrackedEventData(ctx context.Context, after event.TrackingToken) (event.Iterator[event.SerializedTrackedData], error) {
	pos, err := event.PositionOf(after)
	if err != nil {
		return nil, err
	}
	if pos == math.MaxUint64 {
		return event.EmptyIterator[event.SerializedTrackedData](), nil
	}
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, event.Unavailable(err, "")
	}
	return &iterator[event.SerializedTrackedData]{
		tx:     tx,
		cursor: tx.Bucket(globalBucket).Cursor(),
		seek:   itob(uint64(pos) + 1),
		decode: func(k, v []byte) (event.SerializedTrackedData, error) {
			d, err := json.UnmarshalEnvelope(v)
			return event.SerializedTrackedData{
				SerializedDomainData: d,
				Token:                event.GlobalToken(btoi(k)),
			}, err
		},
	}, nil
}

func (s *Store) StoreSnapshotData(ctx context.Context, data event.SerializedDomainData) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		key := []byte(data.AggregateID)
		if curr := b.Get(key); curr != nil {
			snap, err := json.UnmarshalEnvelope(curr)
			if err == nil && snap.Sequence > data.Sequence {
				return nil
			}
		}
		value, err := json.MarshalEnvelope(data)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
	if err != nil {
		return event.Unavailable(err, data.AggregateID)
	}
	return nil
}

func (s *Store) ReadSnapshotData(ctx context.Context, aggID string) (snap event.SerializedDomainData, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(snapshotsBucket).Get([]byte(aggID))
		if value == nil {
			return nil
		}
		d, derr := json.UnmarshalEnvelope(value)
		if derr != nil {
			d.AggregateID = aggID
			return event.AsDeserializationError(d, derr)
		}
		snap, ok = d, true
		return nil
	})
	if err != nil {
		return event.SerializedDomainData{}, false, event.Unavailable(err, aggID)
	}
	return
}

// iterator holds a read-only transaction until it is closed or exhausted.
type iterator[T any] struct {
	tx      *bbolt.Tx
	cursor  *bbolt.Cursor
	seek    []byte
	started bool
	done    bool

	key, value []byte
	decode     func(k, v []byte) (T, error)
}

func (i *iterator[T]) Next() bool {
	if i.done {
		return false
	}
	if i.cursor == nil {
		i.Close()
		return false
	}
	if !i.started {
		i.started = true
		i.key, i.value = i.cursor.Seek(i.seek)
	} else {
		i.key, i.value = i.cursor.Next()
	}
	if i.key == nil {
		i.Close()
		return false
	}
	return true
}

func (i *iterator[T]) Value() (T, error) {
	if i.key == nil {
		var zero T
		return zero, nil
	}
	return i.decode(i.key, i.value)
}

func (i *iterator[T]) Err() error {
	return nil
}

func (i *iterator[T]) Close() error {
	if i.done {
		return nil
	}
	i.done = true
	i.key, i.value = nil, nil
	return i.tx.Rollback()
}
