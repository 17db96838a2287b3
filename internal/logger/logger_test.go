package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	old := instance
	defer func() { instance = old }()

	instance = New(&buf)

	Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expect debug be filtered, got %s", buf.String())
	}

	if err := SetLevel("DEBUG"); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	Debug("shown", F("aggregate", "acc-1"), FUint("seq", 3), FArr("queues", []string{"a", "b"}))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}
	for k, want := range map[string]string{
		"level":     "debug",
		"message":   "shown",
		"aggregate": "acc-1",
		"seq":       "3",
		"queues":    "a,b",
	} {
		if val := entry[k]; val != want {
			t.Fatalf("expect %v, %v be equals", want, val)
		}
	}

	wantErr := errors.New("test error")
	if err := Error(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("expect err be %v, got %v", wantErr, err)
	}
	if err := Error(nil); err != nil {
		t.Fatalf("expect err be nil, got %v", err)
	}

	if err := SetLevel("unknown"); err == nil {
		t.Fatal("expect err be not nil")
	}
}
