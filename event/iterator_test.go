package event

import (
	"errors"
	"testing"
)

type countingIterator struct {
	Iterator[int]
	closed int
}

func (i *countingIterator) Close() error {
	i.closed++
	return i.Iterator.Close()
}

func TestIterator(t *testing.T) {
	t.Run("collect", func(t *testing.T) {
		items, err := Collect(SliceIterator([]int{1, 2, 3}))
		if err != nil {
			t.Fatal("expect err be nil, got", err)
		}
		if want, val := 3, len(items); want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}

		items, err = Collect(EmptyIterator[int]())
		if err != nil || len(items) != 0 {
			t.Fatalf("expect empty result, got %v %v", items, err)
		}

		wantErr := errors.New("iterator test error")
		if _, err := Collect(ErrIterator[int](wantErr)); !errors.Is(err, wantErr) {
			t.Fatalf("expect %v, %v be equals", wantErr, err)
		}
	})

	t.Run("range and break", func(t *testing.T) {
		it := &countingIterator{Iterator: SliceIterator([]int{1, 2, 3})}
		sum := 0
		for v, err := range All[int](it) {
			if err != nil {
				t.Fatal("expect err be nil, got", err)
			}
			sum += v
			if v == 2 {
				break
			}
		}
		if want, val := 3, sum; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}
		if want, val := 1, it.closed; want != val {
			t.Fatalf("expect %v, %v be equals", want, val)
		}
	})

	t.Run("range yields the ending error", func(t *testing.T) {
		wantErr := errors.New("iterator test error")
		var got error
		for _, err := range All(ErrIterator[int](wantErr)) {
			got = err
		}
		if !errors.Is(got, wantErr) {
			t.Fatalf("expect %v, %v be equals", wantErr, got)
		}
	})
}
