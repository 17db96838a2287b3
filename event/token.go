package event

import (
	"fmt"
	"strconv"
)

// TrackingToken marks a position in the global event log. Tokens are totally ordered;
// a nil token stands for the position before the first event.
type TrackingToken interface {
	// After reports whether the token is strictly past other. Any token is after nil.
	After(other TrackingToken) bool
	String() string
}

const globalTokenWidth = 20

// GlobalToken is a dense position in the global log, starting at 1.
type GlobalToken uint64

var _ TrackingToken = GlobalToken(0)

// After implements the TrackingToken interface.
func (t GlobalToken) After(other TrackingToken) bool {
	if other == nil {
		return true
	}
	p, err := PositionOf(other)
	if err != nil {
		return t.String() > other.String()
	}
	return t > p
}

// String returns the zero-padded position, so that lexical and numeric orders match.
func (t GlobalToken) String() string {
	return fmt.Sprintf("%020d", uint64(t))
}

// Next returns the token of the following position.
func (t GlobalToken) Next() GlobalToken {
	return t + 1
}

// PositionOf returns the position of the given token, zero if the token is nil.
// It fails if the token is not a GlobalToken.
func PositionOf(t TrackingToken) (GlobalToken, error) {
	switch tok := t.(type) {
	case nil:
		return 0, nil
	case GlobalToken:
		return tok, nil
	case *GlobalToken:
		if tok == nil {
			return 0, nil
		}
		return *tok, nil
	}
	return 0, fmt.Errorf("%w: unsupported token type %T", ErrInvalidToken, t)
}

// ParseToken parses the string form of a GlobalToken. An empty string returns a nil token.
func ParseToken(str string) (TrackingToken, error) {
	if str == "" {
		return nil, nil
	}
	if len(str) > globalTokenWidth {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, str)
	}
	p, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, str)
	}
	return GlobalToken(p), nil
}
