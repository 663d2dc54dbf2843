package vault

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"animlib/internal/animlib"
)

// MemoryVault keeps backups in a map. Used by tests and the "memory" vault
// type; everything is lost when the process exits.
type MemoryVault struct {
	name string

	mu      sync.RWMutex
	objects map[string][]byte
}

var _ animlib.Vault = (*MemoryVault)(nil)

func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, objects: map[string][]byte{}}
}

func (m *MemoryVault) Put(name string, r io.Reader, size int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	var buf bytes.Buffer
	if n, err := buf.ReadFrom(r); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	} else if n != size {
		return fmt.Errorf("%s: got %d bytes, want %d", name, n, size)
	}

	m.mu.Lock()
	m.objects[name] = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *MemoryVault) Get(name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return notFound(name)
	}
	_, err := w.Write(data)
	return err
}

func (m *MemoryVault) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.objects)), nil
}

func (m *MemoryVault) Delete(name string) error {
	m.mu.Lock()
	delete(m.objects, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryVault) ValidateSetup() error { return nil }
