package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"sniff-go/internal/archive"
)

// sealedMagic opens every changeset payload sealed by TestEncryptor. Its
// first byte is not '{', so a sealed payload never parses as a changeset.
var sealedMagic = []byte("SNIFFENC")

// ErrWrongPassphrase is returned by TestEncryptor.Unlock when keys were set up
// with a different passphrase.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor backs the "test" encryption type. Payloads are framed with a
// fixed header instead of being encrypted, which keeps archived changesets
// byte-for-byte predictable in tests.
//
// Without Setup any passphrase unlocks. After Setup only the same passphrase
// does, so prompts and key errors can be exercised without age.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase *string
}

var _ archive.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase. Like the age encryptor it refuses to replace
// existing keys.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != nil {
		return ErrKeysExist
	}
	e.passphrase = &passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealedMagic); err != nil {
		return fmt.Errorf("writing payload header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("sealing payload: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (archive.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != nil && *e.passphrase != passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

// IsConfigured is always true: the test type needs no key files.
func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext opens payloads sealed by TestEncryptor.
type TestDecryptionContext struct{}

var _ archive.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(sealedMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading payload header: %w", err)
	}
	if !bytes.Equal(header, sealedMagic) {
		return errors.New("payload was not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("opening payload: %w", err)
	}
	return nil
}
