package changes

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashSize is the number of raw bytes in a content hash.
const HashSize = 32

// Hash is a fixed-width content hash. Its text form is exactly 64 lowercase
// hex characters, two per byte, in byte order.
type Hash [HashSize]byte

// HashDecodeError is returned when a string is not a valid hash encoding.
type HashDecodeError struct {
	Input string
	Err   error
}

func (e *HashDecodeError) Error() string {
	return fmt.Sprintf("invalid hash %q: %v", e.Input, e.Err)
}

func (e *HashDecodeError) Unwrap() error { return e.Err }

// NewHash wraps 32 raw bytes.
func NewHash(b [HashSize]byte) Hash {
	return Hash(b)
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize bytes long.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ParseHash decodes a 64 character hex string. Upper and lower case digits
// are both accepted.
func ParseHash(s string) (Hash, error) {
	if len(s) != 2*HashSize {
		return Hash{}, &HashDecodeError{
			Input: s,
			Err:   fmt.Errorf("expected %d hex characters, got %d", 2*HashSize, len(s)),
		}
	}

	var h Hash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, &HashDecodeError{Input: s, Err: err}
	}
	return h, nil
}

// String returns the canonical lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for display.
func (h Hash) Short() string {
	return h.String()[:12]
}

// Compare orders hashes by their raw bytes.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
