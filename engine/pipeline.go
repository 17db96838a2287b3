package engine

import (
	"github.com/rs/zerolog"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/upcast"
)

// pipeline lazily turns a stream of envelopes into a stream of typed messages.
//
// The source is opened on the first call to Next and released on exhaustion, on a fatal error,
// or on Close. Each source item runs through the upcaster chain (when enabled) and every
// resulting envelope is deserialized. Deserialization failures are per-item errors;
// source and upcasting failures end the iteration.
type pipeline[S, T any] struct {
	open   func() (event.Iterator[S], error)
	unwrap func(item S) event.SerializedDomainData
	wrap   func(item S, msg event.DomainMessage) T

	serializer event.Serializer
	chain      *upcast.Chain
	logger     zerolog.Logger

	src     event.Iterator[S]
	opened  bool
	closed  bool
	item    S
	pending []event.SerializedDomainData

	val    T
	valErr error
	err    error
}

var _ event.Iterator[event.DomainMessage] = &pipeline[event.SerializedDomainData, event.DomainMessage]{}

func (p *pipeline[S, T]) Next() bool {
	if p.closed {
		return false
	}
	if !p.opened {
		p.opened = true
		src, err := p.open()
		if err != nil {
			p.fail(event.Unavailable(err, ""))
			return false
		}
		p.src = src
	}

	for {
		if len(p.pending) > 0 {
			d := p.pending[0]
			p.pending = p.pending[1:]
			p.val, p.valErr = p.decode(d)
			return true
		}

		if !p.src.Next() {
			if err := p.src.Err(); err != nil {
				p.fail(event.Unavailable(err, ""))
				return false
			}
			p.release()
			return false
		}

		item, err := p.src.Value()
		if err != nil {
			d := p.unwrap(item)
			p.val, p.valErr = p.wrap(item, identity(d)), event.AsDeserializationError(d, err)
			return true
		}
		p.item = item

		d := p.unwrap(item)
		if p.chain == nil {
			p.pending = []event.SerializedDomainData{d}
			continue
		}
		out, err := p.chain.Upcast(d)
		if err != nil {
			p.fail(err)
			return false
		}
		if len(out) == 0 {
			p.logger.Debug().
				Str("aggregate", d.AggregateID).
				Uint64("seq", d.Sequence).
				Str("type", d.Payload.Type.String()).
				Msg("envelope dropped by upcasters")
			continue
		}
		p.pending = out
	}
}

// decode returns the message along with its per-item error, if any.
// A message that failed to deserialize keeps its identity and position but has no payload.
func (p *pipeline[S, T]) decode(d event.SerializedDomainData) (T, error) {
	msg, err := deserialize(p.serializer, d)
	return p.wrap(p.item, msg), err
}

func (p *pipeline[S, T]) Value() (T, error) {
	return p.val, p.valErr
}

func (p *pipeline[S, T]) Err() error {
	return p.err
}

func (p *pipeline[S, T]) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.pending = nil
	if p.src != nil {
		return p.src.Close()
	}
	return nil
}

func (p *pipeline[S, T]) fail(err error) {
	p.err = err
	p.release()
}

func (p *pipeline[S, T]) release() {
	var zero T
	p.val, p.valErr = zero, nil
	if err := p.Close(); err != nil && p.err == nil {
		p.err = event.Unavailable(err, "")
	}
}

func deserialize(serializer event.Serializer, d event.SerializedDomainData) (event.DomainMessage, error) {
	msg := identity(d)
	payload, err := serializer.Deserialize(d.Payload)
	if err != nil {
		return msg, event.AsDeserializationError(d, err)
	}
	msg.Payload = payload
	return msg, nil
}

// identity returns the message of the envelope without its payload.
func identity(d event.SerializedDomainData) event.DomainMessage {
	return event.DomainMessage{
		ID:            d.EventID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		Sequence:      d.Sequence,
		At:            d.At,
		Metadata:      d.Metadata,
	}
}

