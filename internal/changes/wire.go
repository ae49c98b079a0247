package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Closed sets are encoded as externally tagged values: a variant without a
// payload is a bare JSON string, any other variant is a single-key object
// {"Tag": payload}. Variants with two fields carry a two-element array.

func encodeTagged(tag string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", tag, err)
	}
	return json.Marshal(map[string]json.RawMessage{tag: p})
}

func encodePair(tag string, first, second any) ([]byte, error) {
	return encodeTagged(tag, [2]any{first, second})
}

func encodeUnit(tag string) ([]byte, error) {
	return json.Marshal(tag)
}

// decodeTagged splits an encoded variant into its tag and raw payload. The
// payload is nil for the bare string form.
func decodeTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected exactly one variant tag, got %d", len(obj))
	}
	for tag, payload := range obj {
		return tag, payload, nil
	}
	panic("unreachable")
}

// decodePair splits a two-element array payload.
func decodePair(tag string, payload json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(payload, &pair); err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", tag, err)
	}
	if len(pair) != 2 {
		return nil, nil, fmt.Errorf("decoding %s: expected 2 fields, got %d", tag, len(pair))
	}
	return pair[0], pair[1], nil
}

func requirePayload(tag string, payload json.RawMessage) error {
	if payload == nil || isNull(payload) {
		return fmt.Errorf("variant %s requires a value", tag)
	}
	return nil
}

// requireUnit accepts the bare string form of a unit variant, or the object
// form with a null payload.
func requireUnit(tag string, payload json.RawMessage) error {
	if payload != nil && !isNull(payload) {
		return fmt.Errorf("variant %s takes no value", tag)
	}
	return nil
}

func isNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

// nullable reports whether T is an optional type on the wire. Only pointers
// and byte strings may be encoded as null.
func nullable[T any]() bool {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Pointer, reflect.Slice:
		return true
	default:
		return false
	}
}

// field is one member of an encoded struct.
type field struct {
	name     string
	dst      any
	nullable bool
}

// decodeObject decodes a JSON object into fields. Every field must be
// present and null is only accepted where the field is nullable. Unknown keys
// are ignored.
func decodeObject(what string, data []byte, fields ...field) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding %s: %w", what, err)
	}
	if obj == nil {
		return fmt.Errorf("decoding %s: expected an object, got null", what)
	}
	for _, f := range fields {
		raw, ok := obj[f.name]
		if !ok {
			return fmt.Errorf("decoding %s: missing field %q", what, f.name)
		}
		if !f.nullable && isNull(raw) {
			return fmt.Errorf("decoding %s: field %q must not be null", what, f.name)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return fmt.Errorf("decoding %s field %q: %w", what, f.name, err)
		}
	}
	return nil
}

// byteString is the wire form of an optional byte string: null when absent,
// otherwise an array of numbers.
type byteString []byte

func (b byteString) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *byteString) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*b = nil
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
