// Package backup snapshots the library database, optionally encrypts the
// snapshot, mirrors it to the configured vaults and keeps retention in check.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"animlib/internal/animlib"
	"animlib/internal/database"
	"animlib/internal/database/migrations"
	"animlib/internal/encryption"
	"animlib/internal/model"
)

// backupPrefix is how every backup file name starts.
const backupPrefix = "database_backup_"

// Options configure a Service.
type Options struct {
	// Dir holds local backups. Empty means next to the database file.
	Dir string
	// Keep is how many backups survive pruning, locally and per vault.
	// Zero or less disables pruning.
	Keep int
	// Encrypt stores backups age-encrypted; Encryptor must then be set.
	Encrypt   bool
	Encryptor animlib.Encryptor
	// Vaults receive a copy of every backup, keyed by vault name.
	Vaults map[string]animlib.Vault
	Logger animlib.Logger
}

// Service creates, lists, prunes and restores database backups.
type Service struct {
	db      *database.Database
	dir     string
	keep    int
	encrypt bool
	enc     animlib.Encryptor
	vaults  map[string]animlib.Vault
	logger  animlib.Logger
}

// New validates opts and creates a Service for db.
func New(db *database.Database, opts Options) (*Service, error) {
	dir := opts.Dir
	if dir == "" {
		dir = db.BackupDir()
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: backup directory not set", model.ErrInvalid)
	}
	if opts.Encrypt && opts.Encryptor == nil {
		return nil, fmt.Errorf("%w: encrypted backups need an encryptor", model.ErrInvalid)
	}
	if opts.Logger == nil {
		opts.Logger = animlib.NewNopLogger()
	}
	return &Service{
		db:      db,
		dir:     dir,
		keep:    opts.Keep,
		encrypt: opts.Encrypt,
		enc:     opts.Encryptor,
		vaults:  opts.Vaults,
		logger:  opts.Logger,
	}, nil
}

// Dir returns the local backup directory.
func (s *Service) Dir() string { return s.dir }

// Result describes one Create run.
type Result struct {
	Path      string
	Encrypted bool
	Uploaded  []string // vault names that received the backup
	Pruned    []string // local paths and "<vault>:<name>" entries removed
}

// Create takes a backup, encrypts it if configured, uploads it to every vault
// and prunes old backups. A vault failure does not undo the local backup:
// the result is returned together with the joined vault errors.
func (s *Service) Create(ctx context.Context) (*Result, error) {
	if s.encrypt && !s.enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not set up; run `animlib keys init`")
	}

	path, err := s.db.Backup(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: path}

	if s.encrypt {
		encPath := path + encryption.EncryptedExt
		if err := encryption.EncryptFile(s.enc, path, encPath); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("encrypting backup: %w", err)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing plaintext backup: %w", err)
		}
		res.Path = encPath
		res.Encrypted = true
	}
	s.logger.Info("backup created", "path", res.Path, "encrypted", res.Encrypted)

	var errs []error
	for _, name := range s.vaultNames() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := upload(s.vaults[name], res.Path); err != nil {
			s.logger.Warn("backup upload failed", "vault", name, "error", err)
			errs = append(errs, fmt.Errorf("vault %s: %w", name, err))
			continue
		}
		res.Uploaded = append(res.Uploaded, name)
		s.logger.Info("backup uploaded", "vault", name, "file", filepath.Base(res.Path))
	}

	pruned, err := s.Prune(ctx)
	res.Pruned = pruned
	if err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

func (s *Service) vaultNames() []string {
	names := make([]string, 0, len(s.vaults))
	for name := range s.vaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func upload(v animlib.Vault, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}
	return v.Put(filepath.Base(path), f, info.Size())
}

// List returns the local backups, newest first.
func (s *Service) List() ([]database.BackupInfo, error) {
	return database.ListBackups(s.dir)
}

// ListRemote returns the backup names stored in the named vault, oldest first.
func (s *Service) ListRemote(vaultName string) ([]string, error) {
	v, err := s.vault(vaultName)
	if err != nil {
		return nil, err
	}
	return remoteBackups(v)
}

func (s *Service) vault(name string) (animlib.Vault, error) {
	v, ok := s.vaults[name]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", name, model.ErrNotFound)
	}
	return v, nil
}

func remoteBackups(v animlib.Vault) ([]string, error) {
	names, err := v.List()
	if err != nil {
		return nil, err
	}
	var backups []string
	for _, name := range names {
		if strings.HasPrefix(name, backupPrefix) {
			backups = append(backups, name)
		}
	}
	return backups, nil
}

// Prune removes all but the newest Keep backups locally and in every vault.
// Vault names embed their timestamp, so lexical order is chronological.
func (s *Service) Prune(ctx context.Context) ([]string, error) {
	if s.keep <= 0 {
		return nil, nil
	}
	removed, err := database.PruneBackups(s.dir, s.keep)
	if err != nil {
		return removed, err
	}

	var errs []error
	for _, name := range s.vaultNames() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		v := s.vaults[name]
		backups, err := remoteBackups(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing vault %s: %w", name, err))
			continue
		}
		for i := 0; i < len(backups)-s.keep; i++ {
			if err := v.Delete(backups[i]); err != nil {
				errs = append(errs, fmt.Errorf("pruning %s from vault %s: %w", backups[i], name, err))
				continue
			}
			removed = append(removed, name+":"+backups[i])
		}
	}
	if len(removed) > 0 {
		s.logger.Info("old backups pruned", "count", len(removed))
	}
	return removed, errors.Join(errs...)
}

// Download copies a backup from a vault into the local backup directory and
// returns its local path.
func (s *Service) Download(ctx context.Context, vaultName, name string) (string, error) {
	v, err := s.vault(vaultName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest := filepath.Join(s.dir, filepath.Base(name))
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := v.Get(name, tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("downloading %s from %s: %w", name, vaultName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	s.logger.Info("backup downloaded", "vault", vaultName, "path", dest)
	return dest, nil
}

// Restore replaces the database with the backup at path. Encrypted backups
// are decrypted with passphrase into a private temp directory first; the
// plaintext never lands in the backup directory.
func (s *Service) Restore(ctx context.Context, path, passphrase string) (migrations.Result, error) {
	if !strings.HasSuffix(path, encryption.EncryptedExt) {
		return s.db.RestoreBackup(ctx, path)
	}
	if s.enc == nil {
		return migrations.Result{}, fmt.Errorf("%w: no encryptor configured for %s", model.ErrInvalid, path)
	}

	dc, err := s.enc.Unlock(passphrase)
	if err != nil {
		return migrations.Result{}, fmt.Errorf("unlocking private key: %w", err)
	}
	tmpDir, err := os.MkdirTemp("", "animlib-restore-*")
	if err != nil {
		return migrations.Result{}, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plain := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(path), encryption.EncryptedExt))
	if err := encryption.DecryptFile(dc, path, plain); err != nil {
		return migrations.Result{}, fmt.Errorf("decrypting %s: %w", path, err)
	}
	return s.db.RestoreBackup(ctx, plain)
}
