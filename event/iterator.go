package event

import (
	"iter"
)

// Iterator is a lazy, pull-based sequence of items.
//
// Next advances to the following item and reports whether there is one. Value returns the current
// item and its per-item error (e.g. a DeserializationError, returned along with the item identity);
// a per-item error does not stop the iteration. Err returns the error that ended the iteration,
// if any (e.g. ErrStorageUnavailable).
// Close releases the underlying resources; it is idempotent and safe to call at any point.
type Iterator[T any] interface {
	Next() bool
	Value() (T, error)
	Err() error
	Close() error
}

// SliceIterator iterates over an in-memory slice.
func SliceIterator[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items, idx: -1}
}

type sliceIterator[T any] struct {
	items []T
	idx   int
}

func (i *sliceIterator[T]) Next() bool {
	if i.idx+1 >= len(i.items) {
		i.idx = len(i.items)
		return false
	}
	i.idx++
	return true
}

func (i *sliceIterator[T]) Value() (T, error) {
	var zero T
	if i.idx < 0 || i.idx >= len(i.items) {
		return zero, nil
	}
	return i.items[i.idx], nil
}

func (i *sliceIterator[T]) Err() error {
	return nil
}

func (i *sliceIterator[T]) Close() error {
	i.idx = len(i.items)
	return nil
}

// EmptyIterator returns an iterator without items.
func EmptyIterator[T any]() Iterator[T] {
	return SliceIterator[T](nil)
}

// ErrIterator returns an iterator that yields nothing and reports err from Err.
func ErrIterator[T any](err error) Iterator[T] {
	return &errIterator[T]{err: err}
}

type errIterator[T any] struct {
	err error
}

func (i *errIterator[T]) Next() bool { return false }

func (i *errIterator[T]) Value() (T, error) {
	var zero T
	return zero, nil
}

func (i *errIterator[T]) Err() error { return i.err }

func (i *errIterator[T]) Close() error { return nil }

// All adapts the iterator to a range-over-func sequence. Per-item errors are yielded with their item;
// the ending error, if any, is yielded last with a zero item. The iterator is closed when the loop
// ends, including when the caller breaks out early.
func All[T any](it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Value()) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains and closes the iterator. It stops at the first per-item or ending error.
func Collect[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()
	items := make([]T, 0)
	for it.Next() {
		v, err := it.Value()
		if err != nil {
			return items, err
		}
		items = append(items, v)
	}
	if err := it.Err(); err != nil {
		return items, err
	}
	return items, it.Close()
}
