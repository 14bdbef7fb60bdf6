package turn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Log is an ordered, append-only turn history.
type Log []Turn

func (l Log) Equal(other Log) bool { return slices.Equal(l, other) }

// Extends reports whether l is exactly prev plus one trailing turn.
func (l Log) Extends(prev Log) bool {
	if len(l) != len(prev)+1 {
		return false
	}
	return l[:len(l)-1].Equal(prev)
}

// Append returns a new log; l is never modified.
func (l Log) Append(t Turn) Log {
	out := make(Log, len(l), len(l)+1)
	copy(out, l)
	return append(out, t)
}

func (l Log) Clone() Log {
	if l == nil {
		return Log{}
	}
	return slices.Clone(l)
}

func (l Log) Last() (Turn, bool) {
	if len(l) == 0 {
		return Turn{}, false
	}
	return l[len(l)-1], true
}

// MarshalJSON renders a nil log as [] rather than null.
func (l Log) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Turn(l))
}

// DecodeLog parses a wire turn array. Every failure wraps ErrMalformedTurn.
func DecodeLog(raw json.RawMessage) (Log, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: missing turns", ErrMalformedTurn)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: turns is not an array", ErrMalformedTurn)
	}
	out := make(Log, 0, len(items))
	for i, item := range items {
		var t Turn
		if err := json.Unmarshal(item, &t); err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
