package model

import (
	"time"

	"sniff-go/internal/changes"
)

// ChangesetRecord is the index entry of an archived changeset. The payload
// itself lives in the vault.
type ChangesetRecord struct {
	ID                string            // UUID
	HostID            string            // Host that recorded the changeset
	EarliestTimestamp changes.Timestamp // Watermark of the changeset
	RecordedAt        time.Time         // When the changeset was archived
	EntryCount        int               // Number of paths
	PayloadSize       int64             // Bytes stored in the vault
	Encrypted         bool              // Whether the payload is age-encrypted
	Summary           changes.Summary   // Per-kind counts and size delta
}

// ChangesetEntry is one path of an archived changeset.
type ChangesetEntry struct {
	ChangesetID string
	Path        string
	Kind        changes.Kind
}

// PathEntry is one appearance of a path across archived changesets.
type PathEntry struct {
	ChangesetID       string
	Path              string
	Kind              changes.Kind
	EarliestTimestamp changes.Timestamp
	RecordedAt        time.Time
}

// Operation is a CLI operation that mutated the archive index.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running or if the process died
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
}
