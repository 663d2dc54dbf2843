package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LegacyFileName is the database file older releases kept in the library root.
const LegacyFileName = "animation_library_v2.db"

// MigrateLegacyFile moves a database left at legacyPath by an older release
// to path, together with its WAL and shared-memory files. Nothing happens when
// path already exists or there is no legacy file. It reports whether a file
// was moved.
func MigrateLegacyFile(path, legacyPath string) (bool, error) {
	if path == MemoryPath || legacyPath == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if _, err := os.Stat(legacyPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("checking legacy database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := moveFile(legacyPath, path); err != nil {
		return false, fmt.Errorf("moving legacy database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(legacyPath + suffix); err != nil {
			continue
		}
		if err := moveFile(legacyPath+suffix, path+suffix); err != nil {
			return true, fmt.Errorf("moving legacy database %s file: %w", suffix, err)
		}
	}
	return true, nil
}

// moveFile renames src to dst, copying across filesystems when rename fails.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
