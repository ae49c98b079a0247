package changes

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of a MetaEntryDiff.
type Kind uint8

const (
	KindAdded Kind = iota + 1
	KindDeleted
	KindMetaOnlyChange
	KindEntryChange
)

var kindNames = map[Kind]string{
	KindAdded:          "Added",
	KindDeleted:        "Deleted",
	KindMetaOnlyChange: "MetaOnlyChange",
	KindEntryChange:    "EntryChange",
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown diff kind %q", s)
}

// MetaEntryDiff is the diff of a single path. Every variant carries exactly
// one MetadataInfo; only EntryChange also carries an EntryDiff.
type MetaEntryDiff[Ts any] struct {
	kind  Kind
	entry EntryDiff
	info  MetadataInfo[Ts]
}

// Added returns the diff of a newly created entry.
func Added[Ts any](info MetadataInfo[Ts]) MetaEntryDiff[Ts] {
	return MetaEntryDiff[Ts]{kind: KindAdded, info: info}
}

// Deleted returns the diff of a removed entry.
func Deleted[Ts any](info MetadataInfo[Ts]) MetaEntryDiff[Ts] {
	return MetaEntryDiff[Ts]{kind: KindDeleted, info: info}
}

// MetaOnlyChange returns the diff of an entry whose content is unchanged.
func MetaOnlyChange[Ts any](info MetadataInfo[Ts]) MetaEntryDiff[Ts] {
	return MetaEntryDiff[Ts]{kind: KindMetaOnlyChange, info: info}
}

// EntryChange returns the diff of an entry whose content changed.
func EntryChange[Ts any](entry EntryDiff, info MetadataInfo[Ts]) MetaEntryDiff[Ts] {
	return MetaEntryDiff[Ts]{kind: KindEntryChange, entry: entry, info: info}
}

// Kind returns the variant.
func (d MetaEntryDiff[Ts]) Kind() Kind {
	return d.kind
}

// Entry returns the content diff of an EntryChange.
func (d MetaEntryDiff[Ts]) Entry() (EntryDiff, bool) {
	return d.entry, d.kind == KindEntryChange
}

// MetaInfo returns the attached metadata info, whatever the variant.
func (d MetaEntryDiff[Ts]) MetaInfo() MetadataInfo[Ts] {
	return d.info
}

// TransformMetaEntryDiff maps every timestamp in d through f, keeping the
// variant and any EntryDiff.
func TransformMetaEntryDiff[Ts, NewTs any](d MetaEntryDiff[Ts], f func(Ts) NewTs) MetaEntryDiff[NewTs] {
	return MetaEntryDiff[NewTs]{
		kind:  d.kind,
		entry: d.entry,
		info:  TransformMetadataInfo(d.info, f),
	}
}

func (d MetaEntryDiff[Ts]) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case KindAdded, KindDeleted, KindMetaOnlyChange:
		return encodeTagged(d.kind.String(), d.info)
	case KindEntryChange:
		if d.entry == nil {
			return nil, fmt.Errorf("EntryChange without an entry diff")
		}
		return encodePair(d.kind.String(), d.entry, d.info)
	default:
		return nil, fmt.Errorf("unhandled diff kind %v", d.kind)
	}
}

func (d *MetaEntryDiff[Ts]) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("decoding MetaEntryDiff: %w", err)
	}
	kind, err := ParseKind(tag)
	if err != nil {
		return err
	}
	if err := requirePayload(tag, payload); err != nil {
		return err
	}

	var info MetadataInfo[Ts]
	if kind != KindEntryChange {
		if err := json.Unmarshal(payload, &info); err != nil {
			return fmt.Errorf("decoding %s: %w", tag, err)
		}
		*d = MetaEntryDiff[Ts]{kind: kind, info: info}
		return nil
	}

	rawEntry, rawInfo, err := decodePair(tag, payload)
	if err != nil {
		return err
	}
	entry, err := DecodeEntryDiff(rawEntry)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", tag, err)
	}
	if err := json.Unmarshal(rawInfo, &info); err != nil {
		return fmt.Errorf("decoding %s: %w", tag, err)
	}
	*d = EntryChange(entry, info)
	return nil
}
