package json

import (
	"errors"
	"testing"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/internal/testutil"
)

func TestEnvelope(t *testing.T) {
	for _, d := range append(testutil.GenData("agg-1", 1, 2), testutil.GenSnapshot("agg-1", 3)) {
		b, err := MarshalEnvelope(d)
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		rd, err := UnmarshalEnvelope(b)
		if err != nil {
			t.Fatalf("expect err be nil, got %v", err)
		}
		if !testutil.CmpData(d, rd) {
			t.Fatalf("expect %v, %v be equals", testutil.FormatData(d), testutil.FormatData(rd))
		}
	}

	if _, err := UnmarshalEnvelope([]byte("{")); err == nil {
		t.Fatal("expect err be not nil")
	}
}

func TestTrackedEnvelope(t *testing.T) {
	d := event.SerializedTrackedData{
		SerializedDomainData: testutil.GenData("agg-1", 1, 1)[0],
		Token:                event.GlobalToken(42),
	}
	b, err := MarshalTracked(d)
	if err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	rd, err := UnmarshalTracked(b)
	if err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if !testutil.CmpData(d.SerializedDomainData, rd.SerializedDomainData) {
		t.Fatalf("expect %v, %v be equals", testutil.FormatData(d.SerializedDomainData), testutil.FormatData(rd.SerializedDomainData))
	}
	if want, val := d.Token, rd.Token; want != val {
		t.Fatalf("expect %v, %v be equals", want, val)
	}

	// an envelope without token decodes with a nil token
	b, err = MarshalEnvelope(d.SerializedDomainData)
	if err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	rd, err = UnmarshalTracked(b)
	if err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	if rd.Token != nil {
		t.Fatalf("expect token be nil, got %v", rd.Token)
	}

	if _, err := UnmarshalTracked([]byte(`{"Token":"abc"}`)); !errors.Is(err, event.ErrInvalidToken) {
		t.Fatalf("expect err be %v, got %v", event.ErrInvalidToken, err)
	}
}
