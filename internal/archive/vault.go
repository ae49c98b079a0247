package archive

import "io"

// Vault is the storage backend for changeset payloads and per-host metadata.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutChangeset stores the payload of a changeset. size is the number of
	// bytes that will be read from r.
	PutChangeset(hostID string, id string, r io.Reader, size int64) error

	// GetChangeset writes the payload of a changeset to w.
	GetChangeset(hostID string, id string, w io.Writer) error

	// ListChangesets returns the IDs of all payloads stored for a host, sorted.
	ListChangesets(hostID string) ([]string, error)

	// PutMetadata stores a named metadata item for a specific host.
	// version is stored alongside the metadata for consistency checks.
	// Known names: "db" (the SQLite index).
	PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item for a specific host and writes it to w.
	GetMetadata(hostID string, name string, w io.Writer) error

	// GetMetadataVersion returns the metadata version for a named item on a host.
	// Returns 0 if no metadata has been stored for this host/name.
	GetMetadataVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
