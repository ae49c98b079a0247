package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sniff-go/internal/archive"
)

// FileSystemVault stores payloads and metadata as files:
//
//	<root>/
//	  changesets/
//	    <hostID>/<changeset ID>
//	  metadata/
//	    <hostID>/<name>
//	    <hostID>/<name>.version
type FileSystemVault struct {
	name          string
	root          string
	changesetsDir string
	metadataDir   string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	changesetsDir := filepath.Join(root, "changesets")
	metadataDir := filepath.Join(root, "metadata")

	for _, dir := range []string{changesetsDir, metadataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	return &FileSystemVault{
		name:          name,
		root:          root,
		changesetsDir: changesetsDir,
		metadataDir:   metadataDir,
	}, nil
}

// PutChangeset stores a changeset payload atomically.
func (v *FileSystemVault) PutChangeset(hostID string, id string, r io.Reader, size int64) error {
	if err := checkNames(hostID, id); err != nil {
		return err
	}
	return v.writeFile(filepath.Join(v.changesetsDir, hostID, id), r, size)
}

// GetChangeset writes a changeset payload to w.
func (v *FileSystemVault) GetChangeset(hostID string, id string, w io.Writer) error {
	if err := checkNames(hostID, id); err != nil {
		return err
	}
	err := v.readFile(filepath.Join(v.changesetsDir, hostID, id), w)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("changeset %s for host %s: %w", id, hostID, err)
	}
	return err
}

// ListChangesets returns the sorted IDs of all payloads for a host.
func (v *FileSystemVault) ListChangesets(hostID string) ([]string, error) {
	if err := checkName("host id", hostID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(v.changesetsDir, hostID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing changesets: %w", err)
	}

	// ReadDir returns entries sorted by filename.
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// PutMetadata stores metadata for a specific host along with a version marker.
// The version file is written after the data, so a reader never sees a
// version newer than the data it describes.
func (v *FileSystemVault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	if err := checkNames(hostID, name); err != nil {
		return err
	}
	destPath := filepath.Join(v.metadataDir, hostID, name)
	if err := v.writeFile(destPath, r, size); err != nil {
		return err
	}

	versionData := strconv.FormatInt(version, 10)
	return v.writeFile(destPath+".version", strings.NewReader(versionData), int64(len(versionData)))
}

// GetMetadataVersion returns 0 if no version file exists.
func (v *FileSystemVault) GetMetadataVersion(hostID string, name string) (int64, error) {
	if err := checkNames(hostID, name); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(v.metadataDir, hostID, name+".version"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetMetadata retrieves metadata for a specific host and writes it to w.
func (v *FileSystemVault) GetMetadata(hostID string, name string, w io.Writer) error {
	if err := checkNames(hostID, name); err != nil {
		return err
	}
	err := v.readFile(filepath.Join(v.metadataDir, hostID, name), w)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("metadata %q for host %s: %w", name, hostID, err)
	}
	return err
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.changesetsDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath via a temp file in the same directory and a
// rename, so readers never observe a partial payload.
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

func (v *FileSystemVault) readFile(srcPath string, w io.Writer) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

var _ archive.Vault = (*FileSystemVault)(nil)
