package encryption

import (
	"fmt"

	"sniff-go/internal/archive"
	"sniff-go/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. The "none" type yields a nil Encryptor and payloads are archived in
// plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (archive.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
