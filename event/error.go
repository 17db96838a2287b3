package event

import (
	"errors"
	"fmt"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrDeserialization     = errors.New("deserialization failed")
	ErrSerialization       = errors.New("serialization failed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrUpcasting           = errors.New("upcasting failed")
	ErrInvalidBatch        = errors.New("invalid events batch")
	ErrInvalidToken        = errors.New("invalid tracking token")
)

func Err(err error, aggID string, extra ...interface{}) error {
	return fmt.Errorf("%w: aggregate=%s extra=%v", err, aggID, extra)
}

// DeserializationError reports a single envelope that could not be turned back into a message.
// Readers return it as a per-item error and keep iterating.
type DeserializationError struct {
	EventID     string
	AggregateID string
	Sequence    uint64
	Type        SerializedType
	Err         error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("%v: aggregate=%s seq=%d event=%s type=%s: %v",
		ErrDeserialization, e.AggregateID, e.Sequence, e.EventID, e.Type, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}

// AsDeserializationError returns err as a DeserializationError of the given envelope,
// unless it already is one.
func AsDeserializationError(d SerializedDomainData, err error) error {
	var derr *DeserializationError
	if errors.As(err, &derr) {
		return err
	}
	return &DeserializationError{
		EventID:     d.EventID,
		AggregateID: d.AggregateID,
		Sequence:    d.Sequence,
		Type:        d.Payload.Type,
		Err:         err,
	}
}

// Unavailable wraps err as ErrStorageUnavailable unless it already carries
// one of the storage layer's sentinel errors.
func Unavailable(err error, aggID string, extra ...interface{}) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrStorageUnavailable, ErrConcurrencyConflict, ErrInvalidBatch, ErrInvalidToken, ErrUpcasting, ErrDeserialization} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: aggregate=%s extra=%v: %w", ErrStorageUnavailable, aggID, extra, err)
}
