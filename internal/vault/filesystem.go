package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"animlib/internal/animlib"
)

// FileSystemVault mirrors backups into <root>/backups, usually on a mounted
// share or removable drive.
type FileSystemVault struct {
	name string
	dir  string
}

var _ animlib.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates <root>/backups if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}
	return &FileSystemVault{name: name, dir: dir}, nil
}

func (v *FileSystemVault) path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(v.dir, name), nil
}

// Put writes into a hidden temp file and renames it over name, so readers
// never see a partial backup.
func (v *FileSystemVault) Put(name string, r io.Reader, size int64) (err error) {
	dest, err := v.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(v.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if n != size {
		return fmt.Errorf("%s: got %d bytes, want %d", name, n, size)
	}
	return os.Rename(tmp.Name(), dest)
}

func (v *FileSystemVault) Get(name string, w io.Writer) error {
	src, err := v.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return notFound(name)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

// List skips directories and hidden leftovers of interrupted uploads.
func (v *FileSystemVault) List() ([]string, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil, fmt.Errorf("reading vault directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (v *FileSystemVault) Delete(name string) error {
	p, err := v.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// ValidateSetup checks that the backups directory still exists, e.g. that
// the share is mounted.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.dir)
	if err != nil {
		return fmt.Errorf("vault %s: %w", v.name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault %s: %s is not a directory", v.name, v.dir)
	}
	return nil
}
