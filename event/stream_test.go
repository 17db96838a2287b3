package event

import (
	"context"
	"errors"
	"testing"
)

func TestValidateBatch(t *testing.T) {
	ctx := context.Background()

	tcs := []struct {
		msgs []DomainMessage
		ok   bool
	}{
		{
			msgs: nil,
			ok:   true,
		},
		{
			msgs: Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a", "b", "c"}),
			ok:   true,
		},
		{
			msgs: Envelop(ctx, "Account", "acc-1", 7, []interface{}{"a", "b"}),
			ok:   true,
		},
		{
			msgs: append(
				Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a", "b"}),
				Envelop(ctx, "Account", "acc-2", 4, []interface{}{"a", "b"})...,
			),
			ok: true,
		},
		{
			msgs: Envelop(ctx, "Account", "", 0, []interface{}{"a"}),
			ok:   false,
		},
		{
			msgs: append(
				Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a"}),
				Envelop(ctx, "Account", "acc-1", 2, []interface{}{"c"})...,
			),
			ok: false,
		},
		{
			msgs: append(
				Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a"}),
				Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a"})...,
			),
			ok: false,
		},
		{
			msgs: []DomainMessage{{AggregateID: "acc-1", Sequence: 0}},
			ok:   false,
		},
	}

	for i, tc := range tcs {
		err := ValidateBatch(tc.msgs)
		if tc.ok && err != nil {
			t.Fatalf("tc %d: expect err be nil, got %v", i, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidBatch) {
			t.Fatalf("tc %d: expect %v, %v be equals", i, ErrInvalidBatch, err)
		}
	}

	t.Run("reject duplicate message ids", func(t *testing.T) {
		msgs := Envelop(ctx, "Account", "acc-1", 0, []interface{}{"a", "b"})
		msgs[1].ID = msgs[0].ID
		if err := ValidateBatch(msgs); !errors.Is(err, ErrInvalidBatch) {
			t.Fatalf("expect %v, %v be equals", ErrInvalidBatch, err)
		}
	})
}
