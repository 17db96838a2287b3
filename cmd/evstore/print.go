package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ln80/eventstorage/event"
)

// line is the printed form of a message.
type line struct {
	ID            string            `json:"id"`
	AggregateType string            `json:"aggregateType,omitempty"`
	AggregateID   string            `json:"aggregateId"`
	Sequence      uint64            `json:"sequence"`
	At            time.Time         `json:"at"`
	Type          string            `json:"type,omitempty"`
	Revision      string            `json:"revision,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Token         string            `json:"token,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func lineOf(msg event.DomainMessage, err error) line {
	l := line{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Sequence:      msg.Sequence,
		At:            msg.At,
		Metadata:      msg.Metadata,
	}
	if err != nil {
		l.Error = err.Error()
	}

	var raw []byte
	switch p := msg.Payload.(type) {
	case nil:
		return l
	case event.UnknownPayload:
		l.Type, l.Revision, raw = p.Type.Name, p.Type.Revision, p.Data
	default:
		l.Type, l.Revision = event.TypeOf(p), event.RevisionOf(p)
		raw, _ = json.Marshal(p)
	}
	if json.Valid(raw) {
		l.Payload = raw
	} else {
		// non JSON payloads are printed as base64
		l.Payload, _ = json.Marshal(raw)
	}
	return l
}

type printer struct {
	enc *json.Encoder
}

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w)}
}

func (p *printer) message(msg event.DomainMessage, err error) error {
	return p.enc.Encode(lineOf(msg, err))
}

func (p *printer) tracked(msg event.TrackedMessage, err error) error {
	l := lineOf(msg.DomainMessage, err)
	if msg.Token != nil {
		l.Token = msg.Token.String()
	}
	return p.enc.Encode(l)
}
