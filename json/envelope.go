package json

import (
	"encoding/json"
	"time"

	"github.com/ln80/eventstorage/event"
)

// jsonEnvelope is the storage form of event.SerializedDomainData used by backends
// that persist envelopes as documents.
// The payload bytes are kept as is; they may not be JSON depending on the serializer.
type jsonEnvelope struct {
	FID       string            `json:"ID"`
	FAggType  string            `json:"AggType,omitempty"`
	FAggID    string            `json:"AggID"`
	FSeq      uint64            `json:"Seq"`
	FAt       int64             `json:"At"`
	FMetadata map[string]string `json:"Metadata,omitempty"`
	FType     string            `json:"Type"`
	FRevision string            `json:"Rev,omitempty"`
	FData     []byte            `json:"Data"`
	FToken    string            `json:"Token,omitempty"`
}

func convertEnvelope(d event.SerializedDomainData) jsonEnvelope {
	return jsonEnvelope{
		FID:       d.EventID,
		FAggType:  d.AggregateType,
		FAggID:    d.AggregateID,
		FSeq:      d.Sequence,
		FAt:       d.At.UnixNano(),
		FMetadata: d.Metadata,
		FType:     d.Payload.Type.Name,
		FRevision: d.Payload.Type.Revision,
		FData:     d.Payload.Data,
	}
}

func (e jsonEnvelope) domainData() event.SerializedDomainData {
	return event.SerializedDomainData{
		EventID:       e.FID,
		AggregateType: e.FAggType,
		AggregateID:   e.FAggID,
		Sequence:      e.FSeq,
		At:            time.Unix(0, e.FAt).UTC(),
		Metadata:      e.FMetadata,
		Payload: event.SerializedObject{
			Type: event.SerializedType{Name: e.FType, Revision: e.FRevision},
			Data: e.FData,
		},
	}
}

// MarshalEnvelope encodes the envelope as a JSON document.
func MarshalEnvelope(d event.SerializedDomainData) ([]byte, error) {
	b, err := json.Marshal(convertEnvelope(d))
	if err != nil {
		return nil, event.Err(event.ErrSerialization, d.AggregateID, err)
	}
	return b, nil
}

// UnmarshalEnvelope decodes a document produced by MarshalEnvelope.
func UnmarshalEnvelope(b []byte) (event.SerializedDomainData, error) {
	var e jsonEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return event.SerializedDomainData{}, err
	}
	return e.domainData(), nil
}

// MarshalTracked encodes the tracked envelope, token included.
func MarshalTracked(d event.SerializedTrackedData) ([]byte, error) {
	e := convertEnvelope(d.SerializedDomainData)
	if d.Token != nil {
		e.FToken = d.Token.String()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, event.Err(event.ErrSerialization, d.AggregateID, err)
	}
	return b, nil
}

// UnmarshalTracked decodes a document produced by MarshalTracked.
func UnmarshalTracked(b []byte) (event.SerializedTrackedData, error) {
	var e jsonEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return event.SerializedTrackedData{}, err
	}
	tok, err := event.ParseToken(e.FToken)
	if err != nil {
		return event.SerializedTrackedData{}, err
	}
	return event.SerializedTrackedData{
		SerializedDomainData: e.domainData(),
		Token:                tok,
	}, nil
}
