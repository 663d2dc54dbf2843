package encryption

import (
	"fmt"

	"animlib/internal/animlib"
	"animlib/internal/config"
	"animlib/internal/model"
)

// NewEncryptorFromConfig selects the backup encryptor named by [encryption].type.
// An empty type means age.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (animlib.Encryptor, error) {
	switch cfg.Type {
	case "", "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewFakeEncryptor(), nil
	}
	return nil, fmt.Errorf("%w: unknown encryption type %q", model.ErrInvalid, cfg.Type)
}
