package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"animlib/internal/animlib"
	"animlib/internal/backup"
	"animlib/internal/config"
	"animlib/internal/database"
	"animlib/internal/database/migrations"
	"animlib/internal/encryption"
	"animlib/internal/lifecycle"
	"animlib/internal/model"
	"animlib/internal/scanner"
	"animlib/internal/scheduler"
	"animlib/internal/vault"
)

// App is the application layer between the CLI and the library services.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        *database.Database
	vaults    map[string]animlib.Vault
	encryptor animlib.Encryptor
	scanner   *scanner.Scanner
	lifecycle *lifecycle.Service
	backup    *backup.Service // nil when the database has nowhere to back up to
	logger    animlib.Logger
	clock     animlib.Clock
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "DBBackup").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	clock := animlib.RealClock{}
	op := NewOperation(operation, clock.Now())

	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a, err := newApp(ctx, cfg, logger, clock)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.op = op
	a.logFile = logFile
	logger.Debug("operation started", "operation", op.Name)
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger animlib.Logger, clock animlib.Clock) (*App, error) {
	path, err := database.PathFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}
	if cfg.Library.Root != "" {
		legacy := filepath.Join(cfg.Library.Root, database.LegacyFileName)
		moved, err := database.MigrateLegacyFile(path, legacy)
		if err != nil {
			return nil, err
		}
		if moved {
			logger.Info("moved legacy database", "from", legacy, "to", path)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	vaults, err := vault.NewVaultsFromConfig(ctx, cfg.Vaults)
	if err != nil {
		return nil, fmt.Errorf("creating vaults: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(ctx, cfg.Database, database.Options{
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var bs *backup.Service
	if cfg.Backup.Dir != "" || db.BackupDir() != "" {
		bs, err = backup.New(db, backup.Options{
			Dir:       cfg.Backup.Dir,
			Keep:      cfg.Backup.Keep,
			Encrypt:   cfg.Backup.Encrypt,
			Encryptor: enc,
			Vaults:    vaults,
			Logger:    logger,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating backup service: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		db:        db,
		vaults:    vaults,
		encryptor: enc,
		scanner: scanner.New(db, scanner.Options{
			Logger:     logger,
			AppVersion: cfg.AppVersion,
			Ignore:     cfg.Library.Ignore,
		}),
		lifecycle: lifecycle.New(db, logger),
		backup:    bs,
		logger:    logger,
		clock:     clock,
	}, nil
}

// DB returns the library database for read-only CLI views and repository edits.
func (a *App) DB() *database.Database { return a.db }

// Logger returns the operation logger.
func (a *App) Logger() animlib.Logger { return a.logger }

// Fail records err as the outcome of the operation.
func (a *App) Fail(err error) {
	if a.op != nil {
		a.op.Fail(err)
	}
}

// libraryRoot resolves rawRoot, falling back to the configured library root.
func (a *App) libraryRoot(rawRoot string) (string, error) {
	root := rawRoot
	if root == "" {
		root = a.cfg.Library.Root
	}
	if root == "" {
		return "", fmt.Errorf("%w: no library root given and [library].root not configured", model.ErrInvalid)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

// Scan imports the library at rawRoot, or the configured root when empty.
func (a *App) Scan(ctx context.Context, rawRoot string) (scanner.ScanResult, error) {
	root, err := a.libraryRoot(rawRoot)
	if err != nil {
		return scanner.ScanResult{}, err
	}
	return a.scanner.Scan(ctx, root)
}

func (a *App) backupService() (*backup.Service, error) {
	if a.backup == nil {
		return nil, fmt.Errorf("%w: backups need a file database or [backup].dir", model.ErrInvalid)
	}
	return a.backup, nil
}

// Backup takes a database backup and mirrors it to the configured vaults.
func (a *App) Backup(ctx context.Context) (*backup.Result, error) {
	bs, err := a.backupService()
	if err != nil {
		return nil, err
	}
	return bs.Create(ctx)
}

// Backups lists local backups, newest first.
func (a *App) Backups() ([]database.BackupInfo, error) {
	bs, err := a.backupService()
	if err != nil {
		return nil, err
	}
	return bs.List()
}

// RemoteBackups lists backups per vault.
func (a *App) RemoteBackups() (map[string][]string, error) {
	bs, err := a.backupService()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(a.vaults))
	for name := range a.vaults {
		names, err := bs.ListRemote(name)
		if err != nil {
			return nil, fmt.Errorf("listing vault %s: %w", name, err)
		}
		out[name] = names
	}
	return out, nil
}

// Restore replaces the database with a backup. rawPath is either a path or the
// name of a file in the backup directory. When vaultName is set the backup is
// first downloaded from that vault. passphrase unlocks encrypted backups.
func (a *App) Restore(ctx context.Context, rawPath, vaultName, passphrase string) (migrations.Result, error) {
	bs, err := a.backupService()
	if err != nil {
		return migrations.Result{}, err
	}

	path := rawPath
	if vaultName != "" {
		if path, err = bs.Download(ctx, vaultName, rawPath); err != nil {
			return migrations.Result{}, err
		}
	} else if !filepath.IsAbs(path) {
		if _, statErr := os.Stat(path); statErr != nil {
			path = filepath.Join(bs.Dir(), rawPath)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return migrations.Result{}, fmt.Errorf("backup %s: %w", rawPath, model.ErrNotFound)
	}

	res, err := bs.Restore(ctx, path, passphrase)
	if err != nil {
		return res, err
	}
	a.logger.Info("database restored", "backup", path, "from_version", res.From, "to_version", res.To)
	return res, nil
}

// BackupNeedsPassphrase reports whether restoring rawPath requires unlocking
// the private key.
func BackupNeedsPassphrase(rawPath string) bool {
	return filepath.Ext(rawPath) == encryption.EncryptedExt
}

// Status summarizes the database and its backups.
type Status struct {
	Path           string
	Stats          *database.Stats
	Backups        []database.BackupInfo
	Vaults         []string
	KeysConfigured bool
}

// Status returns the current database status.
func (a *App) Status(ctx context.Context) (*Status, error) {
	stats, err := a.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s := &Status{
		Path:           a.db.Path(),
		Stats:          stats,
		KeysConfigured: a.encryptor.IsConfigured(),
	}
	if a.backup != nil {
		if s.Backups, err = a.backup.List(); err != nil {
			return nil, err
		}
	}
	for name := range a.vaults {
		s.Vaults = append(s.Vaults, name)
	}
	sort.Strings(s.Vaults)
	return s, nil
}

// Scheduler builds the daemon scheduler from the configured job schedules.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.logger)
	if expr := a.cfg.Backup.Schedule; expr != "" {
		bs, err := a.backupService()
		if err != nil {
			return nil, err
		}
		if err := s.Add(scheduler.BackupJob(expr, bs)); err != nil {
			return nil, err
		}
	}
	if expr := a.cfg.Scanner.Schedule; expr != "" {
		root, err := a.libraryRoot("")
		if err != nil {
			return nil, err
		}
		if err := s.Add(scheduler.ScanJob(expr, a.scanner, root)); err != nil {
			return nil, err
		}
	}
	if len(s.Jobs()) == 0 {
		return nil, fmt.Errorf("%w: no job schedules configured; set [backup].schedule or [scanner].schedule", model.ErrInvalid)
	}
	return s, nil
}

// Close logs the operation outcome and closes all resources.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.op != nil {
		elapsed := a.op.Elapsed(a.clock.Now()).Truncate(time.Millisecond)
		if a.op.Failed() {
			a.logger.Error("operation failed", "operation", a.op.Name, "duration", elapsed, "error", a.op.Err)
		} else {
			a.logger.Debug("operation finished", "operation", a.op.Name, "duration", elapsed)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
