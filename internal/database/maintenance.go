package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"animlib/internal/database/migrations"
	"animlib/internal/model"
)

const (
	backupPrefix = "database_backup_"
	backupStamp  = "20060102_150405"

	// BackupExt is the extension of plain backups.
	BackupExt = ".db"
	// EncryptedBackupExt is the extension of age-encrypted backups.
	EncryptedBackupExt = ".db.age"
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	Encrypted bool
}

// BackupDir returns the default backup directory next to the database file.
func (d *Database) BackupDir() string {
	if d.path == MemoryPath {
		return ""
	}
	return filepath.Join(filepath.Dir(d.path), "backups")
}

// Backup writes a consistent snapshot of the database into dir and returns
// its path. The WAL is checkpointed first and the copy is made with SQLite's
// online backup, so readers are not blocked. Writers wait for the duration.
func (d *Database) Backup(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = d.BackupDir()
	}
	if dir == "" {
		return "", fmt.Errorf("%w: no backup directory for an in-memory database", model.ErrInvalid)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("checkpointing wal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".backup-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := d.copyInto(ctx, tmpPath); err != nil {
		return "", err
	}
	if err := syncFile(tmpPath); err != nil {
		return "", err
	}

	dest := d.nextBackupName(dir)
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to rename backup: %w", err)
	}
	d.logger.Info("database backed up", "path", dest)
	return dest, nil
}

func (d *Database) nextBackupName(dir string) string {
	base := backupPrefix + d.now().Format(backupStamp)
	candidate := filepath.Join(dir, base+BackupExt)
	for n := 1; exists(candidate) || exists(candidate+".age"); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, BackupExt))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open backup for sync: %w", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	return nil
}

// copyInto copies the live database into the SQLite file at destPath.
func (d *Database) copyInto(ctx context.Context, destPath string) error {
	dest, err := sql.Open("sqlite3", destPath)
	if err != nil {
		return fmt.Errorf("opening backup target: %w", err)
	}
	defer dest.Close()

	return onlineBackup(ctx, dest, d.db.DB)
}

// restoreFrom overwrites the live database with the SQLite file at srcPath.
func (d *Database) restoreFrom(ctx context.Context, srcPath string) error {
	src, err := sql.Open("sqlite3", srcPath)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer src.Close()

	return onlineBackup(ctx, d.db.DB, src)
}

// onlineBackup copies the main schema of src into dest page by page using the
// driver's backup API.
func onlineBackup(ctx context.Context, dest, src *sql.DB) error {
	destConn, err := dest.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring backup target connection: %w", err)
	}
	defer destConn.Close()
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring backup source connection: %w", err)
	}
	defer srcConn.Close()

	return destConn.Raw(func(destDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			dc, ok := destDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", destDriver)
			}
			sc, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", srcDriver)
			}

			b, err := dc.Backup("main", sc, "main")
			if err != nil {
				return fmt.Errorf("starting online backup: %w", err)
			}
			for {
				done, err := b.Step(-1)
				if err != nil {
					b.Close()
					return fmt.Errorf("copying pages: %w", err)
				}
				if done {
					break
				}
				if err := ctx.Err(); err != nil {
					b.Close()
					return err
				}
				time.Sleep(10 * time.Millisecond)
			}
			if err := b.Finish(); err != nil {
				return fmt.Errorf("finishing online backup: %w", err)
			}
			return nil
		})
	})
}

// ListBackups returns the backups in dir, newest first. A missing directory
// has no backups.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) {
			continue
		}
		encrypted := strings.HasSuffix(name, EncryptedBackupExt)
		if !encrypted && !strings.HasSuffix(name, BackupExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat backup %s: %w", name, err)
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(dir, name),
			Name:      name,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Encrypted: encrypted,
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// PruneBackups deletes all but the keep newest backups in dir and returns the
// removed paths. keep <= 0 keeps everything.
func PruneBackups(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove backup %s: %w", backups[i].Name, err)
		}
		removed = append(removed, backups[i].Path)
	}
	return removed, nil
}

// RestoreBackup replaces the database contents with a plain backup file and
// then migrates it, since the backup may predate the current schema.
func (d *Database) RestoreBackup(ctx context.Context, backupPath string) (migrations.Result, error) {
	if strings.HasSuffix(backupPath, ".age") {
		return migrations.Result{}, fmt.Errorf("%w: %s is encrypted; decrypt it first", model.ErrInvalid, backupPath)
	}
	if _, err := os.Stat(backupPath); err != nil {
		return migrations.Result{}, fmt.Errorf("backup file: %w", err)
	}

	if err := d.restoreLocked(ctx, backupPath); err != nil {
		return migrations.Result{}, err
	}
	d.logger.Info("database restored", "from", backupPath)
	return d.Migrate(ctx)
}

func (d *Database) restoreLocked(ctx context.Context, backupPath string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.restoreFrom(ctx, backupPath); err != nil {
		return fmt.Errorf("restoring %s: %w", backupPath, err)
	}
	return nil
}

// IntegrityReport is the outcome of IntegrityCheck.
type IntegrityReport struct {
	OK                   bool
	Messages             []string
	ForeignKeyViolations []string
}

// IntegrityCheck runs SQLite's integrity and foreign key checks.
func (d *Database) IntegrityCheck(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := d.db.SelectContext(ctx, &report.Messages, "PRAGMA integrity_check"); err != nil {
		return nil, fmt.Errorf("running integrity check: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("running foreign key check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("reading foreign key check: %w", err)
		}
		report.ForeignKeyViolations = append(report.ForeignKeyViolations,
			fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.OK = len(report.Messages) == 1 && report.Messages[0] == "ok" && len(report.ForeignKeyViolations) == 0
	return report, nil
}

// OptimizeResult reports the database size around an Optimize run.
type OptimizeResult struct {
	SizeBefore int64
	SizeAfter  int64
}

// Optimize rebuilds the database file and refreshes query planner statistics.
func (d *Database) Optimize(ctx context.Context) (*OptimizeResult, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	before, err := d.size(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		return nil, fmt.Errorf("vacuuming: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return nil, fmt.Errorf("optimizing: %w", err)
	}
	after, err := d.size(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Info("database optimized", "size_before", before, "size_after", after)
	return &OptimizeResult{SizeBefore: before, SizeAfter: after}, nil
}

func (d *Database) size(ctx context.Context) (int64, error) {
	var pages, pageSize int64
	if err := d.db.GetContext(ctx, &pages, "PRAGMA page_count"); err != nil {
		return 0, fmt.Errorf("reading page count: %w", err)
	}
	if err := d.db.GetContext(ctx, &pageSize, "PRAGMA page_size"); err != nil {
		return 0, fmt.Errorf("reading page size: %w", err)
	}
	return pages * pageSize, nil
}

// Stats summarizes the database contents.
type Stats struct {
	SchemaVersion uint
	SizeBytes     int64
	Folders       int
	Animations    int
	Latest        int
	Archived      int
	Trashed       int
	ReviewNotes   int
}

// Stats returns row counts per table and the schema version.
func (d *Database) Stats(ctx context.Context) (*Stats, error) {
	version, err := d.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	size, err := d.size(ctx)
	if err != nil {
		return nil, err
	}
	s := &Stats{SchemaVersion: version, SizeBytes: size}

	sc := scope{db: d}
	counts := []struct {
		dst   *int
		query string
	}{
		{&s.Folders, "SELECT COUNT(*) FROM folders"},
		{&s.Animations, "SELECT COUNT(*) FROM animations"},
		{&s.Latest, "SELECT COUNT(*) FROM animations WHERE " + latestOnly},
		{&s.Archived, "SELECT COUNT(*) FROM archive"},
		{&s.Trashed, "SELECT COUNT(*) FROM trash"},
		{&s.ReviewNotes, "SELECT COUNT(*) FROM review_notes"},
	}
	for _, c := range counts {
		if *c.dst, err = sc.scalarInt(ctx, c.query); err != nil {
			return nil, err
		}
	}
	return s, nil
}
