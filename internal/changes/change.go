package changes

import (
	"cmp"
	"encoding/json"
	"fmt"
)

// Change is an observed transition of a value. Callers should use Same
// rather than a Change whose sides are equal.
type Change[T any] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

// NewChange returns a Change from one value to another.
func NewChange[T any](from, to T) Change[T] {
	return Change[T]{From: from, To: to}
}

// UnmarshalJSON requires both sides. A side may only be null when T is
// optional.
func (c *Change[T]) UnmarshalJSON(data []byte) error {
	var out Change[T]
	opt := nullable[T]()
	if err := decodeObject("Change", data,
		field{name: "from", dst: &out.From, nullable: opt},
		field{name: "to", dst: &out.To, nullable: opt},
	); err != nil {
		return err
	}
	*c = out
	return nil
}

// MapChange applies f independently to both sides of c.
func MapChange[T, R any](c Change[T], f func(T) R) Change[R] {
	return Change[R]{From: f(c.From), To: f(c.To)}
}

// CompareChange returns -1 if From is less than To, 0 if they are equal and
// +1 if From is greater than To.
func CompareChange[T cmp.Ordered](c Change[T]) int {
	return cmp.Compare(c.From, c.To)
}

// CompareOptionalChange is CompareChange for optional values. An absent
// value orders before any present one.
func CompareOptionalChange[T cmp.Ordered](c Change[*T]) int {
	switch {
	case c.From == nil && c.To == nil:
		return 0
	case c.From == nil:
		return -1
	case c.To == nil:
		return 1
	default:
		return cmp.Compare(*c.From, *c.To)
	}
}

// MaybeChange is either a Change or an unchanged value. The zero value is
// Same of the zero T.
type MaybeChange[T any] struct {
	changed bool
	from    T
	to      T
}

// Same returns an unchanged value.
func Same[T any](v T) MaybeChange[T] {
	return MaybeChange[T]{from: v, to: v}
}

// Changed returns a changed value.
func Changed[T any](from, to T) MaybeChange[T] {
	return MaybeChange[T]{changed: true, from: from, to: to}
}

// FromChange wraps c.
func FromChange[T any](c Change[T]) MaybeChange[T] {
	return Changed(c.From, c.To)
}

// IsChanged reports whether the value changed.
func (m MaybeChange[T]) IsChanged() bool {
	return m.changed
}

// NewValue returns the value after the possible change.
func (m MaybeChange[T]) NewValue() T {
	return m.to
}

// OldValue returns the value before the possible change.
func (m MaybeChange[T]) OldValue() T {
	return m.from
}

// Change returns the underlying Change and true, or false for Same.
func (m MaybeChange[T]) Change() (Change[T], bool) {
	if !m.changed {
		return Change[T]{}, false
	}
	return Change[T]{From: m.from, To: m.to}, true
}

// MapMaybeChange applies f to the single stored value, or independently to
// both sides of a change. The variant is preserved.
func MapMaybeChange[T, R any](m MaybeChange[T], f func(T) R) MaybeChange[R] {
	if m.changed {
		return Changed(f(m.from), f(m.to))
	}
	return Same(f(m.to))
}

func (m MaybeChange[T]) MarshalJSON() ([]byte, error) {
	if m.changed {
		return encodeTagged("Change", Change[T]{From: m.from, To: m.to})
	}
	return encodeTagged("Same", m.to)
}

func (m *MaybeChange[T]) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("decoding MaybeChange: %w", err)
	}
	switch tag {
	case "Change":
		if err := requirePayload(tag, payload); err != nil {
			return err
		}
		var c Change[T]
		if err := json.Unmarshal(payload, &c); err != nil {
			return fmt.Errorf("decoding Change: %w", err)
		}
		*m = FromChange(c)
	case "Same":
		if payload == nil || (isNull(payload) && !nullable[T]()) {
			return fmt.Errorf("variant %s requires a value", tag)
		}
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decoding Same: %w", err)
		}
		*m = Same(v)
	default:
		return fmt.Errorf("unknown MaybeChange variant %q", tag)
	}
	return nil
}
