package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"math"
	"slices"
)

// Changeset is the set of per-path diffs from one comparison pass together
// with the earliest timestamp observed during the scan that produced it.
//
// Paths are unique. Iteration and serialization are in lexicographic path
// order, so equal changesets always encode to identical bytes.
type Changeset[Ts any] struct {
	EarliestTimestamp Ts
	Changes           map[string]MetaEntryDiff[Ts]
}

// NewChangeset returns an empty changeset with the given watermark.
func NewChangeset[Ts any](earliest Ts) *Changeset[Ts] {
	return &Changeset[Ts]{
		EarliestTimestamp: earliest,
		Changes:           make(map[string]MetaEntryDiff[Ts]),
	}
}

// Insert sets the diff for path, replacing any previous diff for it.
func (cs *Changeset[Ts]) Insert(path string, diff MetaEntryDiff[Ts]) {
	if cs.Changes == nil {
		cs.Changes = make(map[string]MetaEntryDiff[Ts])
	}
	cs.Changes[path] = diff
}

// Get returns the diff for path.
func (cs *Changeset[Ts]) Get(path string) (MetaEntryDiff[Ts], bool) {
	d, ok := cs.Changes[path]
	return d, ok
}

// Len returns the number of paths.
func (cs *Changeset[Ts]) Len() int {
	return len(cs.Changes)
}

// Paths returns all paths in lexicographic order.
func (cs *Changeset[Ts]) Paths() []string {
	return slices.Sorted(maps.Keys(cs.Changes))
}

// All iterates over path/diff pairs in lexicographic path order.
func (cs *Changeset[Ts]) All() iter.Seq2[string, MetaEntryDiff[Ts]] {
	return func(yield func(string, MetaEntryDiff[Ts]) bool) {
		for _, p := range cs.Paths() {
			if !yield(p, cs.Changes[p]) {
				return
			}
		}
	}
}

// Validate checks the invariants that the type system cannot express.
func (cs *Changeset[Ts]) Validate() error {
	var errs []error
	for p, d := range cs.All() {
		if p == "" {
			errs = append(errs, errors.New("empty path"))
		}
		switch d.Kind() {
		case KindAdded, KindDeleted, KindMetaOnlyChange:
		case KindEntryChange:
			if d.entry == nil {
				errs = append(errs, fmt.Errorf("%s: entry change without an entry diff", p))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: invalid diff kind %v", p, d.Kind()))
		}
		for i, c := range d.info.Changes {
			if c == nil {
				errs = append(errs, fmt.Errorf("%s: nil metadata change at index %d", p, i))
			}
		}
	}
	return errors.Join(errs...)
}

// TransformChangeset maps the watermark and every timestamp of every diff
// through f. The path set is unchanged.
func TransformChangeset[Ts, NewTs any](cs *Changeset[Ts], f func(Ts) NewTs) *Changeset[NewTs] {
	out := &Changeset[NewTs]{
		EarliestTimestamp: f(cs.EarliestTimestamp),
		Changes:           make(map[string]MetaEntryDiff[NewTs], len(cs.Changes)),
	}
	for p, d := range cs.All() {
		out.Changes[p] = TransformMetaEntryDiff(d, f)
	}
	return out
}

type changesetWire[Ts any] struct {
	EarliestTimestamp Ts                           `json:"earliest_timestamp"`
	Changes           map[string]MetaEntryDiff[Ts] `json:"changes"`
}

// MarshalJSON encodes the changeset. encoding/json emits map keys in sorted
// order, which gives the lexicographic path order.
func (cs Changeset[Ts]) MarshalJSON() ([]byte, error) {
	w := changesetWire[Ts]{EarliestTimestamp: cs.EarliestTimestamp, Changes: cs.Changes}
	if w.Changes == nil {
		w.Changes = map[string]MetaEntryDiff[Ts]{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON requires both the watermark and the change map.
func (cs *Changeset[Ts]) UnmarshalJSON(data []byte) error {
	var w changesetWire[Ts]
	if err := decodeObject("Changeset", data,
		field{name: "earliest_timestamp", dst: &w.EarliestTimestamp},
		field{name: "changes", dst: &w.Changes},
	); err != nil {
		return err
	}
	*cs = Changeset[Ts]{EarliestTimestamp: w.EarliestTimestamp, Changes: w.Changes}
	return nil
}

// Encode writes the canonical JSON form of cs followed by a newline.
func Encode[Ts any](w io.Writer, cs *Changeset[Ts]) error {
	if err := json.NewEncoder(w).Encode(cs); err != nil {
		return fmt.Errorf("encoding changeset: %w", err)
	}
	return nil
}

// Decode reads one JSON changeset with native timestamps.
func Decode(r io.Reader) (*Changeset[Timestamp], error) {
	dec := json.NewDecoder(r)
	var cs Changeset[Timestamp]
	if err := dec.Decode(&cs); err != nil {
		return nil, fmt.Errorf("decoding changeset: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decoding changeset: unexpected data after the changeset")
	}
	return &cs, nil
}

// Summary counts the diffs of a changeset by kind and totals size changes.
type Summary struct {
	Added          int
	Deleted        int
	MetaOnlyChange int
	EntryChange    int
	Grown          int
	Shrunk         int
	SizeDelta      int64
}

// Total returns the number of paths counted.
func (s Summary) Total() int {
	return s.Added + s.Deleted + s.MetaOnlyChange + s.EntryChange
}

// Summarize builds a Summary of cs.
func Summarize[Ts any](cs *Changeset[Ts]) Summary {
	var s Summary
	for _, d := range cs.All() {
		switch d.Kind() {
		case KindAdded:
			s.Added++
		case KindDeleted:
			s.Deleted++
		case KindMetaOnlyChange:
			s.MetaOnlyChange++
		case KindEntryChange:
			s.EntryChange++
		}
		for _, c := range d.info.Changes {
			size, ok := c.(SizeChange)
			if !ok {
				continue
			}
			sign, mag := size.Delta()
			switch sign {
			case 1:
				s.Grown++
			case -1:
				s.Shrunk++
			}
			s.SizeDelta = addSaturating(s.SizeDelta, sign, mag)
		}
	}
	return s
}

// addSaturating adds sign*mag to sum, clamping at the int64 range. The
// headroom on either side always fits in a uint64.
func addSaturating(sum int64, sign int, mag uint64) int64 {
	switch sign {
	case 1:
		if mag > uint64(math.MaxInt64)-uint64(sum) {
			return math.MaxInt64
		}
		return int64(uint64(sum) + mag)
	case -1:
		if mag > uint64(sum)+1<<63 {
			return math.MinInt64
		}
		return int64(uint64(sum) - mag)
	default:
		return sum
	}
}
