package changes

import (
	"encoding/json"
	"fmt"
	"slices"
)

// MetadataChange is a single changed metadata field. The set of
// implementations is closed: SizeChange, NtfsAttributesChange,
// UnixPermissionsChange, NlinkChange, UidChange, GidChange and
// NamedStreamChange. A nil pointer inside an optional change means the field
// does not apply on the observing platform.
type MetadataChange interface {
	json.Marshaler
	isMetadataChange()
}

type (
	SizeChange            Change[uint64]
	NtfsAttributesChange  Change[*uint32]
	UnixPermissionsChange Change[*uint32]
	NlinkChange           Change[*uint64]
	UidChange             Change[*uint32]
	GidChange             Change[*uint32]
)

// NamedStreamChange is a change of a named stream's content. A nil side
// means the stream was absent.
type NamedStreamChange struct {
	Stream NamedStreamType
	Change Change[[]byte]
}

func (SizeChange) isMetadataChange()            {}
func (NtfsAttributesChange) isMetadataChange()  {}
func (UnixPermissionsChange) isMetadataChange() {}
func (NlinkChange) isMetadataChange()           {}
func (UidChange) isMetadataChange()             {}
func (GidChange) isMetadataChange()             {}
func (NamedStreamChange) isMetadataChange()     {}

// Delta returns the direction of the size change (+1 grown, -1 shrunk, 0
// unchanged) and its magnitude in bytes.
func (c SizeChange) Delta() (sign int, magnitude uint64) {
	switch {
	case c.To > c.From:
		return 1, c.To - c.From
	case c.To < c.From:
		return -1, c.From - c.To
	default:
		return 0, 0
	}
}

func (c SizeChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("Size", Change[uint64](c))
}

func (c NtfsAttributesChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("NtfsAttributes", Change[*uint32](c))
}

func (c UnixPermissionsChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("UnixPermissions", Change[*uint32](c))
}

func (c NlinkChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("Nlink", Change[*uint64](c))
}

func (c UidChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("Uid", Change[*uint32](c))
}

func (c GidChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("Gid", Change[*uint32](c))
}

func (c NamedStreamChange) MarshalJSON() ([]byte, error) {
	data := MapChange(c.Change, func(b []byte) byteString { return byteString(b) })
	return encodePair("NamedStream", c.Stream, data)
}

// DecodeMetadataChange decodes the tagged wire form of a MetadataChange.
func DecodeMetadataChange(data []byte) (MetadataChange, error) {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return nil, fmt.Errorf("decoding MetadataChange: %w", err)
	}
	if err := requirePayload(tag, payload); err != nil {
		return nil, err
	}

	switch tag {
	case "Size":
		c, err := decodeChange[uint64](tag, payload)
		return SizeChange(c), err
	case "NtfsAttributes":
		c, err := decodeChange[*uint32](tag, payload)
		return NtfsAttributesChange(c), err
	case "UnixPermissions":
		c, err := decodeChange[*uint32](tag, payload)
		return UnixPermissionsChange(c), err
	case "Nlink":
		c, err := decodeChange[*uint64](tag, payload)
		return NlinkChange(c), err
	case "Uid":
		c, err := decodeChange[*uint32](tag, payload)
		return UidChange(c), err
	case "Gid":
		c, err := decodeChange[*uint32](tag, payload)
		return GidChange(c), err
	case "NamedStream":
		rawStream, rawChange, err := decodePair(tag, payload)
		if err != nil {
			return nil, err
		}
		var stream NamedStreamType
		if err := json.Unmarshal(rawStream, &stream); err != nil {
			return nil, fmt.Errorf("decoding NamedStream: %w", err)
		}
		c, err := decodeChange[byteString](tag, rawChange)
		if err != nil {
			return nil, err
		}
		return NamedStreamChange{
			Stream: stream,
			Change: MapChange(c, func(b byteString) []byte { return []byte(b) }),
		}, nil
	default:
		return nil, fmt.Errorf("unknown MetadataChange variant %q", tag)
	}
}

func decodeChange[T any](tag string, payload json.RawMessage) (Change[T], error) {
	var c Change[T]
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change[T]{}, fmt.Errorf("decoding %s: %w", tag, err)
	}
	return c, nil
}

// MetadataInfo aggregates every metadata change of one entry along with its
// inode number and four timestamps. Ts is the timestamp representation.
//
// Changes keeps detection order and is never deduplicated.
type MetadataInfo[Ts any] struct {
	Changes       []MetadataChange
	Inode         MaybeChange[*uint64]
	Created       MaybeChange[*Ts]
	Modified      MaybeChange[*Ts]
	Accessed      MaybeChange[*Ts]
	InodeModified MaybeChange[*Ts]
}

// TransformMetadataInfo maps every timestamp in info through f. All other
// fields are carried over unchanged.
func TransformMetadataInfo[Ts, NewTs any](info MetadataInfo[Ts], f func(Ts) NewTs) MetadataInfo[NewTs] {
	opt := func(ts *Ts) *NewTs {
		if ts == nil {
			return nil
		}
		v := f(*ts)
		return &v
	}

	return MetadataInfo[NewTs]{
		Changes:       slices.Clone(info.Changes),
		Inode:         info.Inode,
		Created:       MapMaybeChange(info.Created, opt),
		Modified:      MapMaybeChange(info.Modified, opt),
		Accessed:      MapMaybeChange(info.Accessed, opt),
		InodeModified: MapMaybeChange(info.InodeModified, opt),
	}
}

type metadataInfoWire[Ts any] struct {
	Changes       []json.RawMessage    `json:"changes"`
	Inode         MaybeChange[*uint64] `json:"inode"`
	Created       MaybeChange[*Ts]     `json:"created"`
	Modified      MaybeChange[*Ts]     `json:"modified"`
	Accessed      MaybeChange[*Ts]     `json:"accessed"`
	InodeModified MaybeChange[*Ts]     `json:"inode_modified"`
}

func (info MetadataInfo[Ts]) MarshalJSON() ([]byte, error) {
	w := metadataInfoWire[Ts]{
		Changes:       make([]json.RawMessage, len(info.Changes)),
		Inode:         info.Inode,
		Created:       info.Created,
		Modified:      info.Modified,
		Accessed:      info.Accessed,
		InodeModified: info.InodeModified,
	}
	for i, c := range info.Changes {
		if c == nil {
			return nil, fmt.Errorf("nil metadata change at index %d", i)
		}
		raw, err := c.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.Changes[i] = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. Every field is required. An empty
// change list decodes as nil.
func (info *MetadataInfo[Ts]) UnmarshalJSON(data []byte) error {
	var w metadataInfoWire[Ts]
	if err := decodeObject("MetadataInfo", data,
		field{name: "changes", dst: &w.Changes},
		field{name: "inode", dst: &w.Inode},
		field{name: "created", dst: &w.Created},
		field{name: "modified", dst: &w.Modified},
		field{name: "accessed", dst: &w.Accessed},
		field{name: "inode_modified", dst: &w.InodeModified},
	); err != nil {
		return err
	}

	var list []MetadataChange
	for i, raw := range w.Changes {
		c, err := DecodeMetadataChange(raw)
		if err != nil {
			return fmt.Errorf("decoding change %d: %w", i, err)
		}
		list = append(list, c)
	}

	*info = MetadataInfo[Ts]{
		Changes:       list,
		Inode:         w.Inode,
		Created:       w.Created,
		Modified:      w.Modified,
		Accessed:      w.Accessed,
		InodeModified: w.InodeModified,
	}
	return nil
}
