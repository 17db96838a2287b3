package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/json"
	"github.com/ln80/eventstorage/upcast"
)

// Config of the storage engine. It's immutable once the engine is built.
type Config struct {
	Serializer event.Serializer
	Upcasters  *upcast.Chain
	Logger     zerolog.Logger
}

// Option configures the engine built by New.
type Option func(cfg *Config)

// WithSerializer overrides the default json serializer of the global namespace.
func WithSerializer(s event.Serializer) Option {
	return func(cfg *Config) {
		if s != nil {
			cfg.Serializer = s
		}
	}
}

// WithUpcasters builds the upcaster chain from the given stages, in order.
func WithUpcasters(stages ...upcast.Upcaster) Option {
	return func(cfg *Config) {
		cfg.Upcasters = upcast.NewChain(stages...)
	}
}

// WithChain sets an already built upcaster chain.
func WithChain(c *upcast.Chain) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.Upcasters = c
		}
	}
}

// WithLogger sets the logger of dropped envelopes and failed appends. It defaults to zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// Engine translates domain messages to envelopes and back, and delegates persistence to a backend.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	backend event.Backend
	cfg     Config
}

var _ event.Store = &Engine{}

// New returns a storage engine on top of the given backend.
// It panics if the backend is nil.
func New(backend event.Backend, opts ...Option) *Engine {
	if backend == nil {
		panic("eventstorage: nil backend")
	}
	cfg := Config{
		Serializer: json.NewSerializer(""),
		Upcasters:  upcast.Empty(),
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return &Engine{
		backend: backend,
		cfg:     cfg,
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) serialize(msg event.DomainMessage) (event.SerializedDomainData, error) {
	obj, err := e.cfg.Serializer.Serialize(msg.Payload)
	if err != nil {
		return event.SerializedDomainData{}, event.Err(event.ErrSerialization, msg.AggregateID, "seq", msg.Sequence, err)
	}
	return event.SerializedDomainData{
		EventID:       msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Sequence:      msg.Sequence,
		At:            msg.At,
		Metadata:      msg.Metadata,
		Payload:       obj,
	}, nil
}

// AppendEvents validates and serializes the messages, then appends them in a single backend call.
// Nothing is written if any message fails validation or serialization.
func (e *Engine) AppendEvents(ctx context.Context, msgs ...event.DomainMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := event.ValidateBatch(msgs); err != nil {
		return err
	}
	data := make([]event.SerializedDomainData, len(msgs))
	for i, msg := range msgs {
		d, err := e.serialize(msg)
		if err != nil {
			return err
		}
		data[i] = d
	}
	if err := e.backend.AppendEventData(ctx, data...); err != nil {
		e.cfg.Logger.Warn().
			Err(err).
			Str("aggregate", msgs[0].AggregateID).
			Int("count", len(msgs)).
			Msg("append events failed")
		return event.Unavailable(err, msgs[0].AggregateID)
	}
	return nil
}

// StoreSnapshot serializes the snapshot and hands it to the backend, which keeps the newest one.
func (e *Engine) StoreSnapshot(ctx context.Context, snapshot event.DomainMessage) error {
	if snapshot.AggregateID == "" {
		return event.Err(event.ErrInvalidBatch, "", "empty snapshot aggregate id")
	}
	d, err := e.serialize(snapshot)
	if err != nil {
		return err
	}
	if err := e.backend.StoreSnapshotData(ctx, d); err != nil {
		return event.Unavailable(err, snapshot.AggregateID)
	}
	return nil
}

// ReadEvents returns the lazy stream of the aggregate's messages from firstSeq onward.
// Nothing is read from the backend until the first call to Next.
func (e *Engine) ReadEvents(ctx context.Context, aggID string, firstSeq uint64) event.Iterator[event.DomainMessage] {
	return &pipeline[event.SerializedDomainData, event.DomainMessage]{
		open: func() (event.Iterator[event.SerializedDomainData], error) {
			return e.backend.ReadEventData(ctx, aggID, firstSeq)
		},
		unwrap: func(d event.SerializedDomainData) event.SerializedDomainData {
			return d
		},
		wrap: func(_ event.SerializedDomainData, msg event.DomainMessage) event.DomainMessage {
			return msg
		},
		serializer: e.cfg.Serializer,
		chain:      e.cfg.Upcasters,
		logger:     e.cfg.Logger,
	}
}

// ReadTrackedEvents returns the lazy stream of the global log after the given token, from the start if nil.
// Messages produced from one stored envelope all carry that envelope's token.
func (e *Engine) ReadTrackedEvents(ctx context.Context, after event.TrackingToken) event.Iterator[event.TrackedMessage] {
	return &pipeline[event.SerializedTrackedData, event.TrackedMessage]{
		open: func() (event.Iterator[event.SerializedTrackedData], error) {
			return e.backend.ReadTrackedEventData(ctx, after)
		},
		unwrap: func(d event.SerializedTrackedData) event.SerializedDomainData {
			return d.SerializedDomainData
		},
		wrap: func(d event.SerializedTrackedData, msg event.DomainMessage) event.TrackedMessage {
			return event.TrackedMessage{DomainMessage: msg, Token: d.Token}
		},
		serializer: e.cfg.Serializer,
		chain:      e.cfg.Upcasters,
		logger:     e.cfg.Logger,
	}
}

// ReadSnapshot returns the newest snapshot of the aggregate. Snapshots are upcast like events;
// the first upcast result wins, and an empty result means no snapshot.
func (e *Engine) ReadSnapshot(ctx context.Context, aggID string) (event.DomainMessage, bool, error) {
	d, ok, err := e.backend.ReadSnapshotData(ctx, aggID)
	if err != nil {
		return event.DomainMessage{}, false, event.Unavailable(err, aggID)
	}
	if !ok {
		return event.DomainMessage{}, false, nil
	}
	out, err := e.cfg.Upcasters.Upcast(d)
	if err != nil {
		return event.DomainMessage{}, false, err
	}
	if len(out) == 0 {
		e.cfg.Logger.Debug().
			Str("aggregate", aggID).
			Uint64("seq", d.Sequence).
			Msg("snapshot dropped by upcasters")
		return event.DomainMessage{}, false, nil
	}
	msg, err := deserialize(e.cfg.Serializer, out[0])
	if err != nil {
		return event.DomainMessage{}, false, err
	}
	return msg, true, nil
}
