package event

import (
	"errors"
)

var (
	ErrMarshalEmptyEvent = errors.New("event to marshal is empty")
)

// Serializer provides a standard encoding/decoding interface for event payloads.
// It must be symmetric for every revision it supports.
type Serializer interface {
	// Serialize returns the binary form of the value and its type descriptor.
	Serialize(v interface{}) (SerializedObject, error)
	// Deserialize rebuilds the value described by the serialized object.
	Deserialize(obj SerializedObject) (interface{}, error)
	// ContentType returns the equivalent MIME type of the serialized payloads ex: application/json
	ContentType() string
}
