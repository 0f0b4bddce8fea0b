package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque entity identity. The server may send ids as JSON numbers
// or strings; both decode to the same ID so lookups stay consistent.
type ID string

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts a JSON number, a JSON string, or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("domain.ID.UnmarshalJSON: %w", err)
		}
		*id = ID(s)
		return nil
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("domain.ID.UnmarshalJSON: %w", err)
		}
		*id = ID(n.String())
		return nil
	default:
		return fmt.Errorf("domain.ID.UnmarshalJSON: %s: %w", b, ErrInvalidID)
	}
}

// MarshalJSON writes canonical decimal integers ("5", "-12") as JSON
// numbers, matching the numeric ids the server issues. Anything else,
// including "007" and "+5", is written as a JSON string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
