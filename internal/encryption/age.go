// Package encryption seals database backups before they leave the machine.
package encryption

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"filippo.io/age"

	"animlib/internal/animlib"
	"animlib/internal/config"
)

var (
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	ErrWrongPassphrase = errors.New("passphrase does not unlock the private key")
)

// AgeEncryptor encrypts backups to an X25519 recipient. Only the public half
// is needed to encrypt, so scheduled backups never prompt.
type AgeEncryptor struct {
	keys keyFiles
}

var _ animlib.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{keys: keyFiles{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}}
}

// Setup generates the key pair. It refuses to replace existing keys since
// backups already sealed to them would become unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	if e.keys.exist() {
		return fmt.Errorf("keys already exist in %s", filepath.Dir(e.keys.identityPath))
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	return e.keys.write(id, passphrase)
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	to, err := e.keys.recipient()
	if err != nil {
		return err
	}
	sealed, err := age.Encrypt(w, to)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	return sealed.Close()
}

// Unlock returns ErrWrongPassphrase when passphrase does not open the key.
func (e *AgeEncryptor) Unlock(passphrase string) (animlib.DecryptionContext, error) {
	id, err := e.keys.identity(passphrase)
	if err != nil {
		return nil, err
	}
	return unlockedKey{id: id}, nil
}

func (e *AgeEncryptor) IsConfigured() bool { return e.keys.exist() }

// unlockedKey holds the decrypted identity for one restore.
type unlockedKey struct {
	id age.Identity
}

func (k unlockedKey) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, k.id)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}
