package upcast

import (
	"fmt"
	"reflect"

	"github.com/ln80/eventstorage/event"
)

// Chain runs upcaster stages in registration order. The output of a stage is the input of the next one.
// A Chain is immutable and safe for concurrent use. A nil *Chain behaves as an empty chain.
type Chain struct {
	stages        []Upcaster
	deterministic bool
}

// NewChain returns a chain of the given stages. Nil stages are ignored.
func NewChain(stages ...Upcaster) *Chain {
	c := &Chain{stages: make([]Upcaster, 0, len(stages))}
	for _, s := range stages {
		if s == nil {
			continue
		}
		c.stages = append(c.stages, s)
	}
	return c
}

// Empty returns a chain without stages; envelopes pass through unchanged.
func Empty() *Chain {
	return NewChain()
}

// WithDeterminismCheck returns a copy of the chain that runs every stage twice
// and fails if both runs disagree.
func (c *Chain) WithDeterminismCheck() *Chain {
	cp := &Chain{deterministic: true}
	if c != nil {
		cp.stages = c.stages
	}
	return cp
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stages)
}

// Upcast runs the envelope through all stages. It returns an empty slice, and no error,
// if a stage drops the envelope. Any contract violation is reported as event.ErrUpcasting.
func (c *Chain) Upcast(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
	curr := []event.SerializedDomainData{d}
	if c == nil {
		return curr, nil
	}
	for i, s := range c.stages {
		next := make([]event.SerializedDomainData, 0, len(curr))
		for _, in := range curr {
			out, err := c.apply(i, s, in)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			return next, nil
		}
		curr = next
	}
	return curr, nil
}

func (c *Chain) apply(idx int, s Upcaster, in event.SerializedDomainData) ([]event.SerializedDomainData, error) {
	if !s.CanUpcast(in.Payload.Type) {
		return []event.SerializedDomainData{in}, nil
	}

	out, err := safeUpcast(s, clone(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stageErr(idx, in), err)
	}
	if c.deterministic {
		again, err := safeUpcast(s, clone(in))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", stageErr(idx, in), err)
		}
		if !sameOutput(out, again) {
			return nil, fmt.Errorf("%w: non-deterministic output", stageErr(idx, in))
		}
	}

	for _, o := range out {
		if err := checkOutput(in, o); err != nil {
			return nil, fmt.Errorf("%w: %s", stageErr(idx, in), err)
		}
	}
	return out, nil
}

func stageErr(idx int, in event.SerializedDomainData) error {
	return event.Err(event.ErrUpcasting, in.AggregateID, "stage", idx, "seq", in.Sequence, "type", in.Payload.Type)
}

func safeUpcast(s Upcaster, in event.SerializedDomainData) (out []event.SerializedDomainData, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return s.Upcast(in)
}

func checkOutput(in, out event.SerializedDomainData) error {
	switch {
	case out.EventID != in.EventID:
		return fmt.Errorf("event id changed from %q to %q", in.EventID, out.EventID)
	case out.AggregateID != in.AggregateID:
		return fmt.Errorf("aggregate id changed from %q to %q", in.AggregateID, out.AggregateID)
	case out.Sequence != in.Sequence:
		return fmt.Errorf("sequence changed from %d to %d", in.Sequence, out.Sequence)
	case event.CompareRevision(out.Payload.Type.Revision, in.Payload.Type.Revision) < 0:
		return fmt.Errorf("revision downgraded from %q to %q", in.Payload.Type.Revision, out.Payload.Type.Revision)
	}
	return nil
}

// clone deep copies the mutable parts of the envelope, so a stage can't alter its input.
func clone(d event.SerializedDomainData) event.SerializedDomainData {
	if d.Metadata != nil {
		md := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	if d.Payload.Data != nil {
		d.Payload.Data = append([]byte(nil), d.Payload.Data...)
	}
	return d
}

func sameOutput(a, b []event.SerializedDomainData) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
