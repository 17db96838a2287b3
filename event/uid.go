package event

import (
	"github.com/rs/xid"
)

type ID interface {
	String() string
}

// UID returns a new globally unique, roughly time-sortable event identifier.
func UID() ID {
	return xid.New()
}
