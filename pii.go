package eventstorage

import (
	"context"

	"github.com/ln80/pii"

	"github.com/ln80/eventstorage/event"
)

// ProtectPII wraps the given event store to ensure PII protection.
// It ensures client-side personal data encryption/decryption of message payloads.
// The protector namespace is taken from the context, the global namespace is used otherwise.
func ProtectPII(store event.Store, f pii.Factory) event.Store {
	return &piiProtectorWrapper{
		encryptor: f,
		store:     store,
	}
}

type piiProtectorWrapper struct {
	encryptor pii.Factory
	store     event.Store
}

var _ event.Store = &piiProtectorWrapper{}

func namespaceOf(ctx context.Context) string {
	if namespace, ok := ctx.Value(event.ContextNamespaceKey).(string); ok {
		return namespace
	}
	return ""
}

func (s *piiProtectorWrapper) encrypt(ctx context.Context, msgs []event.DomainMessage) error {
	p, err := s.encryptor.Instance(namespaceOf(ctx))
	if err != nil {
		return err
	}
	return event.Transform(ctx, msgs, func(ctx context.Context, ptrs ...interface{}) error {
		return p.Encrypt(ctx, ptrs...)
	})
}

func (s *piiProtectorWrapper) decrypt(ctx context.Context, msgs []event.DomainMessage) error {
	p, err := s.encryptor.Instance(namespaceOf(ctx))
	if err != nil {
		return err
	}
	return event.Transform(ctx, msgs, func(ctx context.Context, ptrs ...interface{}) error {
		return p.Decrypt(ctx, ptrs...)
	})
}

// AppendEvents implements event.Store
func (s *piiProtectorWrapper) AppendEvents(ctx context.Context, msgs ...event.DomainMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	// work on a copy: the caller keeps the cleartext messages
	cp := make([]event.DomainMessage, len(msgs))
	copy(cp, msgs)
	if err := s.encrypt(ctx, cp); err != nil {
		return event.Err(event.ErrSerialization, msgs[0].AggregateID, err)
	}
	return s.store.AppendEvents(ctx, cp...)
}

// StoreSnapshot implements event.Store
func (s *piiProtectorWrapper) StoreSnapshot(ctx context.Context, snapshot event.DomainMessage) error {
	cp := []event.DomainMessage{snapshot}
	if err := s.encrypt(ctx, cp); err != nil {
		return event.Err(event.ErrSerialization, snapshot.AggregateID, err)
	}
	return s.store.StoreSnapshot(ctx, cp[0])
}

// ReadEvents implements event.Store
func (s *piiProtectorWrapper) ReadEvents(ctx context.Context, aggID string, firstSeq uint64) event.Iterator[event.DomainMessage] {
	return &decryptIterator[event.DomainMessage]{
		Iterator: s.store.ReadEvents(ctx, aggID, firstSeq),
		decrypt: func(msg event.DomainMessage) (event.DomainMessage, error) {
			msgs := []event.DomainMessage{msg}
			if err := s.decrypt(ctx, msgs); err != nil {
				return msg, decryptErr(msg, err)
			}
			return msgs[0], nil
		},
	}
}

// ReadTrackedEvents implements event.Store
func (s *piiProtectorWrapper) ReadTrackedEvents(ctx context.Context, after event.TrackingToken) event.Iterator[event.TrackedMessage] {
	return &decryptIterator[event.TrackedMessage]{
		Iterator: s.store.ReadTrackedEvents(ctx, after),
		decrypt: func(msg event.TrackedMessage) (event.TrackedMessage, error) {
			msgs := []event.DomainMessage{msg.DomainMessage}
			if err := s.decrypt(ctx, msgs); err != nil {
				return msg, decryptErr(msg.DomainMessage, err)
			}
			msg.DomainMessage = msgs[0]
			return msg, nil
		},
	}
}

// ReadSnapshot implements event.Store
func (s *piiProtectorWrapper) ReadSnapshot(ctx context.Context, aggID string) (event.DomainMessage, bool, error) {
	snap, ok, err := s.store.ReadSnapshot(ctx, aggID)
	if err != nil || !ok {
		return snap, ok, err
	}
	msgs := []event.DomainMessage{snap}
	if err := s.decrypt(ctx, msgs); err != nil {
		return event.DomainMessage{}, false, decryptErr(snap, err)
	}
	return msgs[0], true, nil
}

// decryptIterator decrypts each item of the underlying iterator.
// A decryption failure is reported as a per-item deserialization error.
type decryptIterator[T any] struct {
	event.Iterator[T]
	decrypt func(T) (T, error)
}

func (i *decryptIterator[T]) Value() (T, error) {
	v, err := i.Iterator.Value()
	if err != nil {
		return v, err
	}
	return i.decrypt(v)
}

func decryptErr(msg event.DomainMessage, err error) error {
	return &event.DeserializationError{
		EventID:     msg.ID,
		AggregateID: msg.AggregateID,
		Sequence:    msg.Sequence,
		Type:        event.SerializedType{Name: event.TypeOf(msg.Payload)},
		Err:         err,
	}
}
