package json

import (
	"encoding/json"
	"reflect"

	"github.com/ln80/eventstorage/event"
)

// Config of the json serializer
type Config struct {
	// AllowUnknown makes Deserialize return an event.UnknownPayload
	// instead of failing when the payload type is missing from the registry.
	AllowUnknown bool
}

// eventSerializer implements event.Serializer interface.
// it uses json serialization, and it's based on event registry
// to unmarshal payloads aka domain events.
type eventSerializer struct {
	namespace     string
	eventRegistry event.Register
	cfg           Config
}

// NewSerializer returns a json payload serializer bound to the registry of the given namespace.
func NewSerializer(namespace string, opts ...func(cfg *Config)) event.Serializer {
	s := &eventSerializer{
		namespace:     namespace,
		eventRegistry: event.NewRegister(namespace),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&s.cfg)
	}
	return s
}

// AllowUnknown is a Config option, see Config.AllowUnknown.
func AllowUnknown(cfg *Config) {
	cfg.AllowUnknown = true
}

var _ event.Serializer = &eventSerializer{}

func (s *eventSerializer) ContentType() string {
	return "application/json"
}

func (s *eventSerializer) Serialize(v interface{}) (obj event.SerializedObject, err error) {
	if v == nil {
		return obj, event.ErrMarshalEmptyEvent
	}
	switch p := v.(type) {
	case event.UnknownPayload:
		return event.SerializedObject{Type: p.Type, Data: p.Data}, nil
	case *event.UnknownPayload:
		return event.SerializedObject{Type: p.Type, Data: p.Data}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return obj, err
	}
	return event.SerializedObject{
		Type: event.SerializedType{
			Name:     event.TypeOfWithNamspace(s.namespace, v),
			Revision: event.RevisionOf(v),
		},
		Data: data,
	}, nil
}

// Deserialize returns the payload in the form it was registered with: a pointer if it was registered
// as a pointer, a value otherwise.
func (s *eventSerializer) Deserialize(obj event.SerializedObject) (interface{}, error) {
	eType, err := s.eventRegistry.Type(obj.Type.Name)
	if err != nil {
		if s.cfg.AllowUnknown {
			return event.UnknownPayload{Type: obj.Type, Data: obj.Data}, nil
		}
		return nil, err
	}
	isPtr := eType.Kind() == reflect.Ptr
	if isPtr {
		eType = eType.Elem()
	}
	ptr := reflect.New(eType)
	if err := json.Unmarshal(obj.Data, ptr.Interface()); err != nil {
		return nil, err
	}
	if isPtr {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}
