package event

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// SerializedType identifies the schema of a serialized payload.
type SerializedType struct {
	Name     string
	Revision string
}

func (t SerializedType) String() string {
	if t.Revision == "" {
		return t.Name
	}
	return t.Name + "@" + t.Revision
}

// SerializedObject is the output of a Serializer: a type descriptor and the encoded bytes.
type SerializedObject struct {
	Type SerializedType
	Data []byte
}

// SerializedDomainData is the envelope form of a DomainMessage. Identity fields stay in cleartext
// so that backends can filter and order entries without decoding the payload.
type SerializedDomainData struct {
	EventID       string
	AggregateType string
	AggregateID   string
	Sequence      uint64
	At            time.Time
	Metadata      map[string]string
	Payload       SerializedObject
}

// SerializedTrackedData is a SerializedDomainData read from the global log.
type SerializedTrackedData struct {
	SerializedDomainData
	Token TrackingToken
}

// UnknownPayload is produced by tolerant serializers for payload types missing from the registry.
type UnknownPayload struct {
	Type SerializedType
	Data []byte
}

// RevisionOf returns the schema revision declared by the event, if any.
func RevisionOf(v interface{}) string {
	if r, ok := v.(interface{ Revision() string }); ok {
		return r.Revision()
	}
	return ""
}

// CompareRevision orders schema revisions. The empty revision comes first.
// Revisions that parse as semantic versions ("2", "1.3", "v2.0.1") are compared numerically,
// anything else falls back to a lexical comparison.
func CompareRevision(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	va, erra := semver.NewVersion(a)
	vb, errb := semver.NewVersion(b)
	if erra == nil && errb == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}
