package event

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
)

type transformTestEvent struct {
	Val string
}

func TestTransformEvents(t *testing.T) {
	ctx := context.Background()

	// test data combines pointers and struct value
	evts := []interface{}{
		&transformTestEvent{
			Val: "1",
		},
		transformTestEvent{
			Val: "2",
		},
		transformTestEvent{
			Val: "3",
		},
	}

	msgs := Envelop(ctx, "Account", "acc-1", 0, evts)

	t.Run("partial failure assert atomicity", func(t *testing.T) {
		wantErr := errors.New("transform fake test error")
		if err := Transform(ctx, msgs, func(ctx context.Context, copyPtrs ...interface{}) error {
			for i := range copyPtrs {
				if i%2 == 1 {
					return wantErr
				}
				ptr, _ := copyPtrs[i].(*transformTestEvent)
				ptr.Val = "0"
			}
			return nil
		}); !errors.Is(err, wantErr) {
			t.Fatalf("expect %v, %v be equals", err, wantErr)
		}

		for i, msg := range msgs {
			want, got := (transformTestEvent{Val: strconv.Itoa(i + 1)}), msg.Payload
			if reflect.TypeOf(got).Kind() == reflect.Ptr {
				if !reflect.DeepEqual(&want, got) {
					t.Fatalf("expect %v, %v be equals", want, got)
				}
			} else {
				if !reflect.DeepEqual(want, got) {
					t.Fatalf("expect %v, %v be equals", want, got)
				}
			}
		}
	})

	t.Run("assert transform events successfully", func(t *testing.T) {
		if err := Transform(ctx, msgs, func(ctx context.Context, copyPtrs ...interface{}) error {
			for i := range copyPtrs {
				ptr, _ := copyPtrs[i].(*transformTestEvent)
				ptr.Val = "0"
			}
			return nil
		}); err != nil {
			t.Fatal("expect err be nil, got", err)
		}

		// the original pointer is not mutated
		if want, got := "1", evts[0].(*transformTestEvent).Val; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		if want, got := "0", msgs[0].Payload.(*transformTestEvent).Val; want != got {
			t.Fatalf("expect %v, %v be equals", want, got)
		}
		for _, msg := range msgs[1:] {
			if want, got := "0", msg.Payload.(transformTestEvent).Val; want != got {
				t.Fatalf("expect %v, %v be equals", want, got)
			}
		}
	})
}
