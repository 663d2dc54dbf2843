package animlib

import "io"

// Encryptor seals database backups. Sealing needs only the public key, so the
// daemon can back up unattended; opening a backup requires the passphrase.
type Encryptor interface {
	// Setup creates the key pair, protecting the private half with passphrase.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key for one restore.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether Setup has been run.
	IsConfigured() bool
}

// DecryptionContext is an unlocked private key. It lives only in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
