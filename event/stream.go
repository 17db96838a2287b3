package event

import (
	"fmt"
)

// Cursor of an aggregate stream, mainly used to validate a batch sequence.
type Cursor struct {
	AggID string
	Seq   uint64
	init  bool
}

// NewCursor returns a cursor positioned before the first message of the aggregate.
func NewCursor(aggID string) *Cursor {
	return &Cursor{
		AggID: aggID,
	}
}

// ValidateMessage checks the message against the cursor and moves the cursor forward.
func ValidateMessage(msg DomainMessage, cur *Cursor) error {
	if msg.AggregateID == "" || msg.AggregateID != cur.AggID {
		return Err(ErrInvalidBatch, cur.AggID, "message aggregate: "+msg.AggregateID)
	}
	if msg.ID == "" {
		return Err(ErrInvalidBatch, cur.AggID, fmt.Sprintf("empty message id at seq %d", msg.Sequence))
	}
	if cur.init && msg.Sequence != cur.Seq+1 {
		return Err(ErrInvalidBatch, cur.AggID, fmt.Sprintf("invalid sequence: %d,%d", cur.Seq, msg.Sequence))
	}
	cur.Seq, cur.init = msg.Sequence, true
	return nil
}

// ValidateBatch checks that messages have an aggregate id and a unique id, and that sequences
// are strictly consecutive per aggregate. A batch may interleave several aggregates.
func ValidateBatch(msgs []DomainMessage) error {
	cursors := make(map[string]*Cursor)
	ids := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		cur, ok := cursors[msg.AggregateID]
		if !ok {
			cur = NewCursor(msg.AggregateID)
			cursors[msg.AggregateID] = cur
		}
		if err := ValidateMessage(msg, cur); err != nil {
			return err
		}
		if _, ok := ids[msg.ID]; ok {
			return Err(ErrInvalidBatch, msg.AggregateID, "duplicate message id: "+msg.ID)
		}
		ids[msg.ID] = struct{}{}
	}
	return nil
}
