package upcast

import (
	"github.com/ln80/eventstorage/event"
)

// Upcaster is a single schema-upgrade stage.
//
// Upcast must be a pure function of its input: no wall clock, randomness or I/O.
// Returning an empty slice removes the envelope from the stream.
type Upcaster interface {
	CanUpcast(t event.SerializedType) bool
	Upcast(d event.SerializedDomainData) ([]event.SerializedDomainData, error)
}

type upcaster struct {
	canUpcast func(t event.SerializedType) bool
	upcast    func(d event.SerializedDomainData) ([]event.SerializedDomainData, error)
}

var _ Upcaster = &upcaster{}

func (u *upcaster) CanUpcast(t event.SerializedType) bool {
	return u.canUpcast(t)
}

func (u *upcaster) Upcast(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
	return u.upcast(d)
}

func matchType(name, revision string) func(t event.SerializedType) bool {
	return func(t event.SerializedType) bool {
		return t.Name == name && t.Revision == revision
	}
}

// Func returns a stage applying fn to envelopes of the given type name and revision.
func Func(name, revision string, fn func(d event.SerializedDomainData) ([]event.SerializedDomainData, error)) Upcaster {
	return &upcaster{
		canUpcast: matchType(name, revision),
		upcast:    fn,
	}
}

// Revise returns a one-to-one stage that rewrites the payload of the given type
// from one revision to the next. A nil fn keeps the payload bytes.
func Revise(name, from, to string, fn func(data []byte) ([]byte, error)) Upcaster {
	return Func(name, from, func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
		data := d.Payload.Data
		if fn != nil {
			var err error
			if data, err = fn(data); err != nil {
				return nil, err
			}
		}
		d.Payload = event.SerializedObject{
			Type: event.SerializedType{Name: name, Revision: to},
			Data: data,
		}
		return []event.SerializedDomainData{d}, nil
	})
}

// Split returns a one-to-many stage. Every payload returned by fn becomes a separate
// envelope sharing the identity of the source one.
func Split(name, revision string, fn func(data []byte) ([]event.SerializedObject, error)) Upcaster {
	return Func(name, revision, func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
		objs, err := fn(d.Payload.Data)
		if err != nil {
			return nil, err
		}
		out := make([]event.SerializedDomainData, 0, len(objs))
		for _, obj := range objs {
			cp := d
			cp.Payload = obj
			out = append(out, cp)
		}
		return out, nil
	})
}

// Drop returns a stage that removes the envelopes of the given type from the stream.
func Drop(name, revision string) Upcaster {
	return Func(name, revision, func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
		return []event.SerializedDomainData{}, nil
	})
}

// Rename returns a stage that changes the type descriptor of matching envelopes.
// Payload bytes are kept as is.
func Rename(from, to event.SerializedType) Upcaster {
	return Func(from.Name, from.Revision, func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
		d.Payload.Type = to
		return []event.SerializedDomainData{d}, nil
	})
}
