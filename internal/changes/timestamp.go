package changes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayout is the whole-second part of the textual form. It is always
// followed by '.' and at least one fractional digit.
const timestampLayout = "2006-01-02 15:04:05"

const maxFractionDigits = 9

// Timestamp is an instant with nanosecond precision. It is stored in UTC and
// rendered as "YYYY-MM-DD HH:MM:SS.s+" with no zone suffix, so parsed values
// are always interpreted as UTC.
type Timestamp struct {
	t time.Time
}

// TimestampParseError is returned when a string does not match the
// timestamp format.
type TimestampParseError struct {
	Input string
	Err   error
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %v", e.Input, e.Err)
}

func (e *TimestampParseError) Unwrap() error { return e.Err }

// NewTimestamp converts t to UTC and drops any monotonic clock reading.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.Round(0).UTC()}
}

// ParseTimestamp parses the textual form. The input must match the format
// exactly; there is no partial or best-effort result. Fractional digits past
// nanosecond precision are accepted and dropped.
func ParseTimestamp(s string) (Timestamp, error) {
	dot := len(timestampLayout)
	if len(s) <= dot+1 || s[dot] != '.' {
		return Timestamp{}, &TimestampParseError{Input: s, Err: errors.New("expected fractional seconds after position 19")}
	}

	digits := s[dot+1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Timestamp{}, &TimestampParseError{
				Input: s,
				Err:   fmt.Errorf("unexpected character %q at position %d", digits[i], dot+1+i),
			}
		}
	}

	t, err := time.Parse(timestampLayout, s[:dot])
	if err != nil {
		return Timestamp{}, &TimestampParseError{Input: s, Err: err}
	}

	if len(digits) > maxFractionDigits {
		digits = digits[:maxFractionDigits]
	}
	nanos, err := strconv.Atoi(digits + strings.Repeat("0", maxFractionDigits-len(digits)))
	if err != nil {
		return Timestamp{}, &TimestampParseError{Input: s, Err: err}
	}

	return Timestamp{t: t.Add(time.Duration(nanos))}, nil
}

// String renders the timestamp with trailing fractional zeros trimmed and at
// least one fractional digit.
func (ts Timestamp) String() string {
	frac := strings.TrimRight(fmt.Sprintf("%09d", ts.t.Nanosecond()), "0")
	if frac == "" {
		frac = "0"
	}
	return ts.t.Format(timestampLayout) + "." + frac
}

// Time returns the instant as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// IsZero reports whether ts is the zero instant.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero()
}

// Equal compares at full precision.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.t.Equal(other.t)
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.t.Before(other.t)
}

// Compare returns -1, 0 or +1 at full precision.
func (ts Timestamp) Compare(other Timestamp) int {
	return ts.t.Compare(other.t)
}

// MarshalText implements encoding.TextMarshaler.
func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ts *Timestamp) UnmarshalText(text []byte) error {
	parsed, err := ParseTimestamp(string(text))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
