package vault

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"sniff-go/internal/archive"
)

// MemoryVault is an in-memory implementation of archive.Vault, used for
// testing and for throwaway configurations. It is safe for concurrent use.
type MemoryVault struct {
	name            string
	changesets      map[string]map[string][]byte // hostID -> changeset ID -> payload
	metadata        map[string][]byte            // "hostID/name" -> metadata
	metadataVersion map[string]int64             // "hostID/name" -> version
	mu              sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:            name,
		changesets:      make(map[string]map[string][]byte),
		metadata:        make(map[string][]byte),
		metadataVersion: make(map[string]int64),
	}
}

func metadataKey(hostID, name string) string {
	return hostID + "/" + name
}

func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

// PutChangeset stores a changeset payload. Storing the same ID twice
// replaces the payload.
func (m *MemoryVault) PutChangeset(hostID string, id string, r io.Reader, size int64) error {
	if err := checkNames(hostID, id); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.changesets[hostID] == nil {
		m.changesets[hostID] = make(map[string][]byte)
	}
	m.changesets[hostID][id] = data
	return nil
}

// GetChangeset writes a changeset payload to w.
func (m *MemoryVault) GetChangeset(hostID string, id string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.changesets[hostID][id]
	if !ok {
		return fmt.Errorf("changeset %s for host %s: %w", id, hostID, ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write changeset: %w", err)
	}
	return nil
}

// ListChangesets returns the sorted IDs of all payloads for a host.
func (m *MemoryVault) ListChangesets(hostID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.changesets[hostID])), nil
}

// PutMetadata stores a named metadata item for a specific host.
func (m *MemoryVault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	if err := checkNames(hostID, name); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(hostID, name)
	m.metadata[key] = data
	m.metadataVersion[key] = version
	return nil
}

// GetMetadataVersion returns 0 if no metadata has been stored for this host/name.
func (m *MemoryVault) GetMetadataVersion(hostID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metadataVersion[metadataKey(hostID, name)], nil
}

// GetMetadata retrieves a named metadata item for a specific host.
func (m *MemoryVault) GetMetadata(hostID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.metadata[metadataKey(hostID, name)]
	if !ok {
		return fmt.Errorf("metadata %q for host %s: %w", name, hostID, ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ archive.Vault = (*MemoryVault)(nil)
