package vault

import (
	"fmt"
	"strings"

	"animlib/internal/model"
)

// validateName rejects object names that could escape the vault's namespace.
// Backup file names are flat, so anything with a separator is refused.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: invalid object name %q", model.ErrInvalid, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: object name %q contains a path separator", model.ErrInvalid, name)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("object %s: %w", name, model.ErrNotFound)
}
