package testutil

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ln80/eventstorage/event"
)

// BackendTest runs the event and snapshot conformance tests against the backend.
func BackendTest(t *testing.T, ctx context.Context, backend event.Backend) {
	EventBackendTest(t, ctx, backend)
	SnapshotBackendTest(t, ctx, backend)
}

// lastToken returns the token of the last entry of the global log, nil if the log is empty.
func lastToken(t *testing.T, ctx context.Context, backend event.EventBackend) event.TrackingToken {
	it, err := backend.ReadTrackedEventData(ctx, nil)
	if err != nil {
		t.Fatalf("expect to read tracked events, got err: %v", err)
	}
	all, err := event.Collect(it)
	if err != nil {
		t.Fatalf("expect to read tracked events, got err: %v", err)
	}
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1].Token
}

func readAggregate(t *testing.T, ctx context.Context, backend event.EventBackend, aggID string, firstSeq uint64) []event.SerializedDomainData {
	it, err := backend.ReadEventData(ctx, aggID, firstSeq)
	if err != nil {
		t.Fatalf("expect to read events, got err: %v", err)
	}
	data, err := event.Collect(it)
	if err != nil {
		t.Fatalf("expect to read events, got err: %v", err)
	}
	return data
}

func readTracked(t *testing.T, ctx context.Context, backend event.EventBackend, after event.TrackingToken) []event.SerializedTrackedData {
	it, err := backend.ReadTrackedEventData(ctx, after)
	if err != nil {
		t.Fatalf("expect to read tracked events, got err: %v", err)
	}
	data, err := event.Collect(it)
	if err != nil {
		t.Fatalf("expect to read tracked events, got err: %v", err)
	}
	return data
}

// EventBackendTest checks the append and read contracts of an event backend.
func EventBackendTest(t *testing.T, ctx context.Context, backend event.EventBackend) {
	t.Run("append and read aggregate events", func(t *testing.T) {
		aggID := event.UID().String()
		data := GenData(aggID, 0, 10)
		if err := backend.AppendEventData(ctx, data...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}

		// test append chunk twice
		err := backend.AppendEventData(ctx, data...)
		if err == nil || !errors.Is(err, event.ErrConcurrencyConflict) {
			t.Fatalf("expect conflict error to occur, got: %v", err)
		}

		rdata := readAggregate(t, ctx, backend, aggID, 0)
		if l := len(rdata); l != 10 {
			t.Fatalf("invalid loaded events length, must be %d got: %d", 10, l)
		}
		// test data integrity
		for i, d := range data {
			if !CmpData(d, rdata[i]) {
				t.Fatalf("event %d data altered %v %v", i, FormatData(d), FormatData(rdata[i]))
			}
		}

		// test load a sub part of the stream
		rdata = readAggregate(t, ctx, backend, aggID, 7)
		if l := len(rdata); l != 3 {
			t.Fatalf("invalid loaded events length, must be %d got: %d", 3, l)
		}
		for i, d := range rdata {
			if !CmpData(d, data[7+i]) {
				t.Fatalf("event %d data altered %v %v", i, FormatData(d), FormatData(data[7+i]))
			}
		}

		// test load past the end of the stream and an unknown stream
		if l := len(readAggregate(t, ctx, backend, aggID, 10)); l != 0 {
			t.Fatalf("expect empty result, got len: %d", l)
		}
		if l := len(readAggregate(t, ctx, backend, event.UID().String(), 0)); l != 0 {
			t.Fatalf("expect empty result, got len: %d", l)
		}
	})

	t.Run("append is atomic", func(t *testing.T) {
		aggID := event.UID().String()
		if err := backend.AppendEventData(ctx, GenData(aggID, 0, 2)...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}

		// seq 2 and 3 are new but seq 1 is taken: nothing must be written
		batch := append(GenData(aggID, 2, 2), GenData(aggID, 1, 1)...)
		if err := backend.AppendEventData(ctx, batch...); !errors.Is(err, event.ErrConcurrencyConflict) {
			t.Fatalf("expect conflict error to occur, got: %v", err)
		}
		if l := len(readAggregate(t, ctx, backend, aggID, 0)); l != 2 {
			t.Fatalf("invalid loaded events length, must be %d got: %d", 2, l)
		}
	})

	t.Run("concurrent appends with overlapping sequences", func(t *testing.T) {
		aggID := event.UID().String()
		batches := [][]event.SerializedDomainData{
			GenData(aggID, 0, 3),
			GenData(aggID, 1, 3),
		}

		var wg sync.WaitGroup
		errs := make([]error, len(batches))
		for i := range batches {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = backend.AppendEventData(ctx, batches[i]...)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			if !errors.Is(err, event.ErrConcurrencyConflict) {
				t.Fatalf("expect conflict error to occur, got: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expect exactly one append to succeed, got: %d", succeeded)
		}
		if l := len(readAggregate(t, ctx, backend, aggID, 0)); l != 3 {
			t.Fatalf("invalid loaded events length, must be %d got: %d", 3, l)
		}
	})

	t.Run("read tracked events", func(t *testing.T) {
		start := lastToken(t, ctx, backend)

		agg1, agg2 := event.UID().String(), event.UID().String()
		data1, data2 := GenData(agg1, 0, 3), GenData(agg2, 0, 2)
		if err := backend.AppendEventData(ctx, data1...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}
		if err := backend.AppendEventData(ctx, data2...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}

		tracked := readTracked(t, ctx, backend, start)
		if l := len(tracked); l != 5 {
			t.Fatalf("invalid tracked events length, must be %d got: %d", 5, l)
		}
		want := append(append([]event.SerializedDomainData{}, data1...), data2...)
		for i, d := range tracked {
			if !CmpData(d.SerializedDomainData, want[i]) {
				t.Fatalf("event %d data altered %v %v", i, FormatData(d.SerializedDomainData), FormatData(want[i]))
			}
			if d.Token == nil || !d.Token.After(start) {
				t.Fatalf("expect token %v be after %v", d.Token, start)
			}
			if i > 0 && !d.Token.After(tracked[i-1].Token) {
				t.Fatalf("expect token %v be after %v", d.Token, tracked[i-1].Token)
			}
		}

		// resume after N events: no duplicates, no gaps
		resumed := readTracked(t, ctx, backend, tracked[2].Token)
		if l := len(resumed); l != 2 {
			t.Fatalf("invalid tracked events length, must be %d got: %d", 2, l)
		}
		for i, d := range resumed {
			if want, val := tracked[3+i].EventID, d.EventID; want != val {
				t.Fatalf("expect %v, %v be equals", want, val)
			}
		}

		if l := len(readTracked(t, ctx, backend, tracked[4].Token)); l != 0 {
			t.Fatalf("expect empty result, got len: %d", l)
		}
	})

	t.Run("read tracked events after a token past the end", func(t *testing.T) {
		if err := backend.AppendEventData(ctx, GenData(event.UID().String(), 0, 2)...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}
		for _, after := range []event.TrackingToken{
			event.GlobalToken(math.MaxInt64),
			event.GlobalToken(math.MaxInt64 + 1),
			event.GlobalToken(math.MaxUint64),
		} {
			if l := len(readTracked(t, ctx, backend, after)); l != 0 {
				t.Fatalf("expect empty result after %v, got len: %d", after, l)
			}
		}
	})

	t.Run("close iterator early", func(t *testing.T) {
		aggID := event.UID().String()
		if err := backend.AppendEventData(ctx, GenData(aggID, 0, 3)...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}
		it, err := backend.ReadEventData(ctx, aggID, 0)
		if err != nil {
			t.Fatalf("expect to read events, got err: %v", err)
		}
		if !it.Next() {
			t.Fatalf("expect iterator to have items, got err: %v", it.Err())
		}
		if err := it.Close(); err != nil {
			t.Fatalf("expect to close iterator, got err: %v", err)
		}
		if err := it.Close(); err != nil {
			t.Fatalf("expect close to be idempotent, got err: %v", err)
		}
		if it.Next() {
			t.Fatal("expect closed iterator to be exhausted")
		}

		// resources are released: a write succeeds after an abandoned read
		if err := backend.AppendEventData(ctx, GenData(aggID, 3, 1)...); err != nil {
			t.Fatalf("expect to append events, got err: %v", err)
		}
	})
}

// SnapshotBackendTest checks the newest-wins contract of a snapshot backend.
func SnapshotBackendTest(t *testing.T, ctx context.Context, backend event.SnapshotBackend) {
	t.Run("store and read snapshots", func(t *testing.T) {
		aggID := event.UID().String()

		_, ok, err := backend.ReadSnapshotData(ctx, aggID)
		if err != nil {
			t.Fatalf("expect to read snapshot, got err: %v", err)
		}
		if ok {
			t.Fatal("expect snapshot not found")
		}

		snap2 := GenSnapshot(aggID, 2)
		if err := backend.StoreSnapshotData(ctx, snap2); err != nil {
			t.Fatalf("expect to store snapshot, got err: %v", err)
		}
		rsnap, ok, err := backend.ReadSnapshotData(ctx, aggID)
		if err != nil || !ok {
			t.Fatalf("expect to find snapshot, got: %v %v", ok, err)
		}
		if !CmpData(snap2, rsnap) {
			t.Fatalf("snapshot data altered %v %v", FormatData(snap2), FormatData(rsnap))
		}

		// newer snapshot wins
		snap4 := GenSnapshot(aggID, 4)
		if err := backend.StoreSnapshotData(ctx, snap4); err != nil {
			t.Fatalf("expect to store snapshot, got err: %v", err)
		}
		// an older snapshot never replaces a newer one
		if err := backend.StoreSnapshotData(ctx, GenSnapshot(aggID, 3)); err != nil {
			t.Fatalf("expect to store snapshot, got err: %v", err)
		}
		rsnap, ok, err = backend.ReadSnapshotData(ctx, aggID)
		if err != nil || !ok {
			t.Fatalf("expect to find snapshot, got: %v %v", ok, err)
		}
		if want, val := uint64(4), rsnap.Sequence; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}
		if !CmpData(snap4, rsnap) {
			t.Fatalf("snapshot data altered %v %v", FormatData(snap4), FormatData(rsnap))
		}
	})
}
