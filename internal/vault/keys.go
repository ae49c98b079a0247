package vault

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a changeset payload or metadata item does not
// exist in the vault.
var ErrNotFound = errors.New("not found in vault")

// checkName rejects host IDs, changeset IDs and metadata names that cannot be
// used as a single path or object-key segment.
func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("empty %s", kind)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".tmp-") {
		return fmt.Errorf("invalid %s: %q", kind, name)
	}
	return nil
}

func checkNames(hostID, id string) error {
	if err := checkName("host id", hostID); err != nil {
		return err
	}
	return checkName("name", id)
}
