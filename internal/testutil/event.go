package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ln80/eventstorage/event"
)

type Event1 struct {
	Val string
}

type Event2 struct {
	Val string
}

func (e *Event2) Revision() string {
	return "2"
}

// State is used as a snapshot payload
type State struct {
	Balance int
	Seq     uint64
}

func GenEvts(count int) []interface{} {
	evts := make([]interface{}, count)
	for i := 0; i < count; i++ {
		var evt interface{}
		if i%2 == 0 {
			evt = &Event2{"val " + strconv.Itoa(i)}
		} else {
			evt = &Event1{"val " + strconv.Itoa(i)}
		}

		evts[i] = evt
	}
	return evts
}

// GenData returns count consecutive envelopes of the aggregate starting at firstSeq.
func GenData(aggID string, firstSeq uint64, count int) []event.SerializedDomainData {
	at := time.Now().UTC().Truncate(time.Millisecond)
	data := make([]event.SerializedDomainData, count)
	for i := 0; i < count; i++ {
		payload, _ := json.Marshal(Event1{Val: "val " + strconv.Itoa(i)})
		data[i] = event.SerializedDomainData{
			EventID:       event.UID().String(),
			AggregateType: "Account",
			AggregateID:   aggID,
			Sequence:      firstSeq + uint64(i),
			At:            at.Add(time.Duration(i) * time.Millisecond),
			Metadata:      map[string]string{event.MetadataUserKey: "user-" + strconv.Itoa(i)},
			Payload: event.SerializedObject{
				Type: event.SerializedType{Name: "testutil.Event1", Revision: "1"},
				Data: payload,
			},
		}
	}
	return data
}

// GenSnapshot returns a snapshot envelope of the aggregate at the given sequence.
func GenSnapshot(aggID string, seq uint64) event.SerializedDomainData {
	payload, _ := json.Marshal(State{Balance: int(seq) * 10, Seq: seq})
	return event.SerializedDomainData{
		EventID:       event.UID().String(),
		AggregateType: "Account",
		AggregateID:   aggID,
		Sequence:      seq,
		At:            time.Now().UTC().Truncate(time.Millisecond),
		Payload: event.SerializedObject{
			Type: event.SerializedType{Name: "testutil.State"},
			Data: payload,
		},
	}
}

func FormatData(d event.SerializedDomainData) string {
	return fmt.Sprintf(`
		aggID: %s
		evtID: %s
		seq: %d
		at: %v
		metadata: %v
		type: %s
		data: %s
	`, d.AggregateID, d.EventID, d.Sequence, d.At.UnixNano(), d.Metadata, d.Payload.Type, string(d.Payload.Data))
}

func CmpData(d1, d2 event.SerializedDomainData) bool {
	return d1.EventID == d2.EventID &&
		d1.AggregateType == d2.AggregateType &&
		d1.AggregateID == d2.AggregateID &&
		d1.Sequence == d2.Sequence &&
		d1.At.Equal(d2.At) &&
		cmpMetadata(d1.Metadata, d2.Metadata) &&
		d1.Payload.Type == d2.Payload.Type &&
		bytes.Equal(d1.Payload.Data, d2.Payload.Data)
}

func cmpMetadata(m1, m2 map[string]string) bool {
	if len(m1) != len(m2) {
		return false
	}
	for k, v := range m1 {
		if v2, ok := m2[k]; !ok || v2 != v {
			return false
		}
	}
	return true
}
