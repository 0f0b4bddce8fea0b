package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// localLayouts are zone-less layouts emitted by servers serializing local
// date-times; they are interpreted in time.Local.
var localLayouts = []string{ //nolint:gochecknoglobals // parse table
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Timestamp is a point in time decoded leniently from RFC 3339 strings,
// zone-less local date-times, epoch milliseconds, or [y,m,d,h,min,s,nanos]
// arrays.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// UnmarshalJSON never fails: a value it cannot read decodes to the zero
// Timestamp and is logged, so one bad date does not drop the whole record.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	t, err := decodeTime(bytes.TrimSpace(b))
	if err != nil {
		log.Warn().Err(err).Str("value", truncate(string(b), 64)).Msg("ignoring unreadable timestamp")
		t = time.Time{}
	}
	ts.Time = t
	return nil
}

func decodeTime(b []byte) (time.Time, error) {
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return time.Time{}, nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return time.Time{}, fmt.Errorf("domain.Timestamp: %w", err)
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("domain.Timestamp: %w", err)
		}
		return parsed.Time, nil
	case b[0] == '[':
		return fromParts(b)
	default:
		ms, err := strconv.ParseFloat(string(b), 64)
		if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
			return time.Time{}, fmt.Errorf("domain.Timestamp: %s is not epoch millis", b)
		}
		return time.UnixMilli(int64(ms)), nil
	}
}

// fromParts reads the array form some servers use for local date-times:
// [year, month, day, hour?, minute?, second?, nanos?].
func fromParts(b []byte) (time.Time, error) {
	var parts []int
	if err := json.Unmarshal(b, &parts); err != nil {
		return time.Time{}, fmt.Errorf("domain.Timestamp: %w", err)
	}
	if len(parts) < 3 || len(parts) > 7 {
		return time.Time{}, fmt.Errorf("domain.Timestamp: want 3 to 7 date parts, got %d", len(parts))
	}
	p := make([]int, 7)
	copy(p, parts)
	if p[1] < 1 || p[1] > 12 || p[2] < 1 || p[2] > 31 {
		return time.Time{}, fmt.Errorf("domain.Timestamp: bad date %v", parts)
	}
	return time.Date(p[0], time.Month(p[1]), p[2], p[3], p[4], p[5], p[6], time.Local), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseTimestamp parses an RFC 3339 or zone-less local date-time. An empty
// string yields the zero Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{Time: t}, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised time %q", s)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Format(time.RFC3339Nano))
}
