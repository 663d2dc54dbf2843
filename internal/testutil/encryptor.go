package testutil

import (
	"animlib/internal/animlib"
	"animlib/internal/encryption"
)

// NewFakeEncryptor returns an encryptor that frames instead of encrypting, so
// backup tests need neither keys nor a passphrase.
func NewFakeEncryptor() animlib.Encryptor {
	return encryption.NewFakeEncryptor()
}
