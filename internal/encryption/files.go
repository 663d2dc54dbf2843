package encryption

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"animlib/internal/animlib"
)

// EncryptedExt is appended to the name of encrypted backup files.
const EncryptedExt = ".age"

// EncryptFile encrypts src into dst. dst appears only once fully written.
func EncryptFile(enc animlib.Encryptor, src, dst string) error {
	return transformFile(src, dst, enc.Encrypt)
}

// DecryptFile decrypts src into dst with an unlocked context. dst appears
// only once fully written.
func DecryptFile(dc animlib.DecryptionContext, src, dst string) error {
	return transformFile(src, dst, dc.Decrypt)
}

func transformFile(src, dst string, fn func(io.Reader, io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := fn(in, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
