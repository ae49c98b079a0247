package changes

import (
	"encoding/json"
	"fmt"
)

// EntryDiff describes a change to an entry's primary content. The set of
// implementations is closed: FileChanged, SymlinkChanged, TypeChange and
// OtherChange. Consumers should switch over all four.
type EntryDiff interface {
	json.Marshaler
	isEntryDiff()
}

// FileChanged means the file content hash changed.
type FileChanged struct {
	HashChange Change[Hash] `json:"hash_change"`
}

// SymlinkChanged means the symlink target changed.
type SymlinkChanged struct {
	PathChange Change[string] `json:"path_change"`
}

// TypeChange means the entry type changed. Both sides hold human-readable
// type descriptions such as "file" or "directory".
type TypeChange Change[string]

// OtherChange marks an unclassified content change.
type OtherChange struct{}

func (FileChanged) isEntryDiff()    {}
func (SymlinkChanged) isEntryDiff() {}
func (TypeChange) isEntryDiff()     {}
func (OtherChange) isEntryDiff()    {}

func (d FileChanged) MarshalJSON() ([]byte, error) {
	return encodeTagged("FileChanged", struct {
		HashChange Change[Hash] `json:"hash_change"`
	}{d.HashChange})
}

func (d SymlinkChanged) MarshalJSON() ([]byte, error) {
	return encodeTagged("SymlinkChanged", struct {
		PathChange Change[string] `json:"path_change"`
	}{d.PathChange})
}

func (d TypeChange) MarshalJSON() ([]byte, error) {
	return encodeTagged("TypeChange", Change[string](d))
}

func (OtherChange) MarshalJSON() ([]byte, error) {
	return encodeUnit("OtherChange")
}

// DecodeEntryDiff decodes the tagged wire form of an EntryDiff.
func DecodeEntryDiff(data []byte) (EntryDiff, error) {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return nil, fmt.Errorf("decoding EntryDiff: %w", err)
	}

	switch tag {
	case "FileChanged":
		if err := requirePayload(tag, payload); err != nil {
			return nil, err
		}
		var d FileChanged
		if err := decodeObject(tag, payload, field{name: "hash_change", dst: &d.HashChange}); err != nil {
			return nil, err
		}
		return d, nil
	case "SymlinkChanged":
		if err := requirePayload(tag, payload); err != nil {
			return nil, err
		}
		var d SymlinkChanged
		if err := decodeObject(tag, payload, field{name: "path_change", dst: &d.PathChange}); err != nil {
			return nil, err
		}
		return d, nil
	case "TypeChange":
		if err := requirePayload(tag, payload); err != nil {
			return nil, err
		}
		var c Change[string]
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decoding TypeChange: %w", err)
		}
		return TypeChange(c), nil
	case "OtherChange":
		if err := requireUnit(tag, payload); err != nil {
			return nil, err
		}
		return OtherChange{}, nil
	default:
		return nil, fmt.Errorf("unknown EntryDiff variant %q", tag)
	}
}

// NamedStreamKind enumerates the OS-specific named metadata streams.
type NamedStreamKind uint8

const (
	StreamReparseData NamedStreamKind = iota + 1
	StreamAccessControlList
	StreamDosName
	StreamObjectID
	StreamEncryptedFileSystemInfo
	StreamExtendedAttributes
	StreamAlternateDataStream
)

var streamKindNames = map[NamedStreamKind]string{
	StreamReparseData:             "ReparseData",
	StreamAccessControlList:       "AccessControlList",
	StreamDosName:                 "DosName",
	StreamObjectID:                "ObjectId",
	StreamEncryptedFileSystemInfo: "EncryptedFileSystemInfo",
	StreamExtendedAttributes:      "ExtendedAttributes",
	StreamAlternateDataStream:     "AlternateDataStream",
}

// String returns the wire name of the kind.
func (k NamedStreamKind) String() string {
	if name, ok := streamKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NamedStreamKind(%d)", k)
}

// NamedStreamType identifies a named stream. Name is only set for alternate
// data streams. The type is comparable and usable as a map key.
type NamedStreamType struct {
	Kind NamedStreamKind
	Name string
}

var (
	ReparseData             = NamedStreamType{Kind: StreamReparseData}
	AccessControlList       = NamedStreamType{Kind: StreamAccessControlList}
	DosName                 = NamedStreamType{Kind: StreamDosName}
	ObjectID                = NamedStreamType{Kind: StreamObjectID}
	EncryptedFileSystemInfo = NamedStreamType{Kind: StreamEncryptedFileSystemInfo}
	ExtendedAttributes      = NamedStreamType{Kind: StreamExtendedAttributes}
)

// AlternateDataStream identifies the alternate data stream with the given name.
func AlternateDataStream(name string) NamedStreamType {
	return NamedStreamType{Kind: StreamAlternateDataStream, Name: name}
}

func (s NamedStreamType) String() string {
	if s.Kind == StreamAlternateDataStream {
		return s.Kind.String() + ":" + s.Name
	}
	return s.Kind.String()
}

func (s NamedStreamType) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StreamAlternateDataStream:
		return encodeTagged(s.Kind.String(), struct {
			Name string `json:"name"`
		}{s.Name})
	case StreamReparseData, StreamAccessControlList, StreamDosName, StreamObjectID,
		StreamEncryptedFileSystemInfo, StreamExtendedAttributes:
		return encodeUnit(s.Kind.String())
	default:
		return nil, fmt.Errorf("unknown named stream kind %d", s.Kind)
	}
}

func (s *NamedStreamType) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("decoding NamedStreamType: %w", err)
	}

	if tag == StreamAlternateDataStream.String() {
		if err := requirePayload(tag, payload); err != nil {
			return err
		}
		var name string
		if err := decodeObject(tag, payload, field{name: "name", dst: &name}); err != nil {
			return err
		}
		*s = AlternateDataStream(name)
		return nil
	}

	for kind, name := range streamKindNames {
		if name == tag {
			if err := requireUnit(tag, payload); err != nil {
				return err
			}
			*s = NamedStreamType{Kind: kind}
			return nil
		}
	}
	return fmt.Errorf("unknown NamedStreamType variant %q", tag)
}
