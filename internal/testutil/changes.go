package testutil

import (
	"crypto/sha256"
	"time"

	"sniff-go/internal/changes"
)

// HashOf returns the SHA-256 of data as a content hash.
func HashOf(data string) changes.Hash {
	return changes.NewHash(sha256.Sum256([]byte(data)))
}

// Timestamp returns a UTC timestamp for the given wall-clock values.
func Timestamp(year int, month time.Month, day, hour, minute, sec, nsec int) changes.Timestamp {
	return changes.NewTimestamp(time.Date(year, month, day, hour, minute, sec, nsec, time.UTC))
}

func ptr[T any](v T) *T { return &v }

// SampleChangeset returns a changeset with one path of each kind:
//
//	bin/tool        MetaOnlyChange  mode 0644 -> 0755
//	docs/readme.md  Added           120 bytes
//	old.log         Deleted         40 bytes
//	src/main.go     EntryChange     content v1 -> v2, 100 -> 140 bytes
func SampleChangeset() *changes.Changeset[changes.Timestamp] {
	earliest := Timestamp(2024, time.June, 1, 10, 0, 0, 0)
	modified := Timestamp(2024, time.June, 1, 10, 5, 30, 250_000_000)

	cs := changes.NewChangeset(earliest)
	cs.Insert("docs/readme.md", changes.Added(changes.MetadataInfo[changes.Timestamp]{
		Changes:  []changes.MetadataChange{changes.SizeChange{From: 0, To: 120}},
		Modified: changes.Changed[*changes.Timestamp](nil, ptr(modified)),
	}))
	cs.Insert("old.log", changes.Deleted(changes.MetadataInfo[changes.Timestamp]{
		Changes: []changes.MetadataChange{changes.SizeChange{From: 40, To: 0}},
	}))
	cs.Insert("bin/tool", changes.MetaOnlyChange(changes.MetadataInfo[changes.Timestamp]{
		Changes: []changes.MetadataChange{
			changes.UnixPermissionsChange{From: ptr[uint32](0o644), To: ptr[uint32](0o755)},
		},
	}))
	cs.Insert("src/main.go", changes.EntryChange(
		changes.FileChanged{HashChange: changes.NewChange(HashOf("v1"), HashOf("v2"))},
		changes.MetadataInfo[changes.Timestamp]{
			Changes:  []changes.MetadataChange{changes.SizeChange{From: 100, To: 140}},
			Modified: changes.Changed(ptr(earliest), ptr(modified)),
		},
	))
	return cs
}
