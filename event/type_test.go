package event

import (
	"context"
	"testing"
)

type typeTestEvent struct{ Val string }

type namedTestEvent struct{ Val string }

func (namedTestEvent) EventName() string { return "account.Opened" }

func TestTypeOf(t *testing.T) {
	t.Run("test TypeOf", func(t *testing.T) {
		wantT := "event.typeTestEvent"
		t1, t2 := TypeOf(typeTestEvent{}), TypeOf(&typeTestEvent{})
		if t1 != t2 {
			t.Fatalf("expect %s, %s be equals", t1, t2)
		}
		if t1 != wantT {
			t.Fatalf("expect %s, %s be equals", t1, wantT)
		}
		if want, val := "", TypeOf(nil); want != val {
			t.Fatalf("expect %s, %s be equals", want, val)
		}
	})

	t.Run("test TypeOf with explicit name", func(t *testing.T) {
		if want, val := "account.Opened", TypeOf(namedTestEvent{}); want != val {
			t.Fatalf("expect %s, %s be equals", want, val)
		}
		if want, val := "account.Opened", TypeOf(&namedTestEvent{}); want != val {
			t.Fatalf("expect %s, %s be equals", want, val)
		}
	})

	t.Run("test TypeOfWithContext", func(t *testing.T) {
		ctx := context.Background()
		wantT := "event.typeTestEvent"
		t1, t2 := TypeOfWithContext(ctx, typeTestEvent{}), TypeOfWithContext(ctx, &typeTestEvent{})
		if t1 != t2 {
			t.Fatalf("expect %s, %s be equals", t1, t2)
		}
		if t1 != wantT {
			t.Fatalf("expect %s, %s be equals", t1, wantT)
		}

		namespace := "test"
		ctx = context.WithValue(ctx, ContextNamespaceKey, namespace)
		wantT = namespace + ".typeTestEvent"
		t1, t2 = TypeOfWithContext(ctx, typeTestEvent{}), TypeOfWithContext(ctx, &typeTestEvent{})
		if t1 != t2 {
			t.Fatalf("expect %s, %s be equals", t1, t2)
		}
		if t1 != wantT {
			t.Fatalf("expect %s, %s be equals", t1, wantT)
		}
	})
}
