package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"animlib/internal/animlib"
	"animlib/internal/database/migrations"
	"animlib/internal/model"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultBusyTimeout is how long a connection waits on a locked database
// before failing.
const DefaultBusyTimeout = 30 * time.Second

// Database owns the library database file. Reads run concurrently on pooled
// connections; writes are serialized by a process-wide lock held for the
// whole transaction.
type Database struct {
	db      *sqlx.DB
	path    string
	clock   animlib.Clock
	logger  animlib.Logger
	writeMu sync.Mutex
}

// Options tune Open. The zero value is usable.
type Options struct {
	Clock       animlib.Clock
	Logger      animlib.Logger
	BusyTimeout time.Duration
}

// Open opens (creating if needed) the database at path and brings its schema
// to the current version before returning. path may be MemoryPath.
func Open(ctx context.Context, path string, opts Options) (*Database, error) {
	if opts.Clock == nil {
		opts.Clock = animlib.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = animlib.NewNopLogger()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	db, err := OpenConnection(path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}

	d := &Database{
		db:     db,
		path:   path,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if _, err := d.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// OpenConnection opens a pool whose connections all carry the library's
// pragmas: foreign keys on, WAL journaling, a busy timeout, and BEGIN IMMEDIATE
// for transactions so writers take the lock up front.
// Exported for tools that need a raw connection.
func OpenConnection(path string, busyTimeout time.Duration) (*sqlx.DB, error) {
	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", busyTimeout.Milliseconds())

	var dsn string
	if path == MemoryPath {
		dsn = MemoryPath + "?" + params
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?" + params + "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate upgrades the schema in a single transaction. Open calls it; it is
// exported for restores of older backups.
func (d *Database) Migrate(ctx context.Context) (migrations.Result, error) {
	var res migrations.Result
	err := d.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		res, err = migrations.Upgrade(ctx, tx)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("migrating schema: %w", err)
	}
	if res.Fresh {
		d.logger.Info("created database schema", "path", d.path, "version", res.To)
	} else if res.Applied() {
		d.logger.Info("migrated database schema", "path", d.path, "from", res.From, "to", res.To)
	}
	return res, nil
}

// SchemaVersion returns the recorded schema version.
func (d *Database) SchemaVersion(ctx context.Context) (uint, error) {
	return migrations.CurrentVersion(ctx, d.db)
}

// CheckMigrations verifies the schema is at the version this binary expects.
func (d *Database) CheckMigrations(ctx context.Context) error {
	return migrations.CheckStatus(ctx, d.db)
}

// WithTransaction runs fn in a write transaction while holding the write lock.
// The transaction commits if fn returns nil and rolls back otherwise; a panic
// in fn rolls back and re-panics. fn must not call WithTransaction itself; use
// repository WithTx views instead.
func (d *Database) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				d.logger.Warn("rollback failed", "error", err)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	committed = true
	return nil
}

// WithRead runs fn against the pool without taking the write lock.
func (d *Database) WithRead(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	return fn(d.db)
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes every pooled connection.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) now() time.Time {
	return d.clock.Now()
}

// classify maps SQLite constraint failures to model.ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", model.ErrConflict, err)
	}
	return err
}

// scope is the shared plumbing of every repository: run against an enclosing
// transaction when one was supplied via WithTx, otherwise against the database.
type scope struct {
	db *Database
	tx *sqlx.Tx
}

func (s scope) read(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.WithRead(ctx, fn)
}

func (s scope) write(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.WithTransaction(ctx, fn)
}

// Repositories over this database. Each is a stateless view; construct freely.

func (d *Database) Folders() *FolderRepository       { return &FolderRepository{scope{db: d}} }
func (d *Database) Animations() *AnimationRepository { return &AnimationRepository{scope{db: d}} }
func (d *Database) Archive() *ArchiveRepository      { return &ArchiveRepository{scope{db: d}} }
func (d *Database) Trash() *TrashRepository          { return &TrashRepository{scope{db: d}} }
func (d *Database) ReviewNotes() *ReviewNoteRepository {
	return &ReviewNoteRepository{scope{db: d}}
}
