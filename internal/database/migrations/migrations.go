package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Schema is the complete current schema, used for fresh installs.
//
//go:embed schema.sql
var Schema string

const versionTableDDL = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Querier is the subset of *sql.DB and *sql.Tx the engine needs.
// *sqlx.Tx satisfies it through its embedded *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migration is one embedded NNNN_name.up.sql file.
type Migration struct {
	Version uint
	Name    string
	SQL     string
}

// Result reports what Upgrade did.
type Result struct {
	From  uint
	To    uint
	Fresh bool
}

// Applied reports whether any schema change was made.
func (r Result) Applied() bool { return r.From != r.To }

type hook func(ctx context.Context, q Querier) error

// Steps that cannot be written as unconditional SQL run as hooks around the
// migration file of the same version.
var hooks = map[uint]struct{ before, after hook }{
	4: {before: detachLegacyTrash, after: moveLegacyTrashToArchive},
}

// Load returns every embedded migration in version order.
func Load() ([]Migration, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return nil, fmt.Errorf("reading first migration: %w", err)
	}

	var out []Migration
	for {
		m, err := readUp(src, version)
		if err != nil {
			return nil, err
		}
		out = append(out, m)

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading migration after %d: %w", version, err)
		}
		version = next
	}
	return out, nil
}

func readUp(src source.Driver, version uint) (Migration, error) {
	r, name, err := src.ReadUp(version)
	if err != nil {
		return Migration{}, fmt.Errorf("opening migration %d: %w", version, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return Migration{}, fmt.Errorf("reading migration %d: %w", version, err)
	}
	return Migration{Version: version, Name: name, SQL: string(body)}, nil
}

// LatestVersion returns the highest version number available in the source.
func LatestVersion() (uint, error) {
	migs, err := Load()
	if err != nil {
		return 0, err
	}
	return migs[len(migs)-1].Version, nil
}

// CurrentVersion returns the recorded schema version, or 0 for a database
// that has never been initialized.
func CurrentVersion(ctx context.Context, q Querier) (uint, error) {
	exists, err := tableExists(ctx, q, "schema_version")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int64
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return uint(version), nil
}

// Upgrade brings the schema to the latest version. It must run inside a
// transaction owned by the caller so that a failure at any step leaves the
// database untouched.
//
// An empty database gets the full current schema in one step. A database at
// an older version gets every later migration in order. A database at or past
// the latest version is left alone.
func Upgrade(ctx context.Context, q Querier) (Result, error) {
	migs, err := Load()
	if err != nil {
		return Result{}, err
	}
	latest := migs[len(migs)-1].Version

	from, err := CurrentVersion(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if from >= latest {
		return Result{From: from, To: from}, nil
	}

	if _, err := q.ExecContext(ctx, versionTableDDL); err != nil {
		return Result{}, fmt.Errorf("creating schema_version: %w", err)
	}

	// Databases written before version tracking existed still carry the
	// baseline tables.
	if from == 0 {
		legacy, err := tableExists(ctx, q, "animations")
		if err != nil {
			return Result{}, err
		}
		if legacy {
			from = 1
		}
	}

	res := Result{From: from, To: latest}
	if from == 0 {
		res.Fresh = true
		if err := execScript(ctx, q, Schema); err != nil {
			return Result{}, fmt.Errorf("creating schema: %w", err)
		}
	} else {
		for _, m := range migs {
			if m.Version <= from {
				continue
			}
			if err := apply(ctx, q, m); err != nil {
				return Result{}, err
			}
		}
	}

	if err := ensureRootFolder(ctx, q); err != nil {
		return Result{}, err
	}
	if err := stamp(ctx, q, latest); err != nil {
		return Result{}, err
	}
	return res, nil
}

// ApplyThrough builds the schema of an empty database as it was at target by
// replaying migrations 1..target. Used to produce historical databases.
func ApplyThrough(ctx context.Context, q Querier, target uint) error {
	migs, err := Load()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, versionTableDDL); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	for _, m := range migs {
		if m.Version > target {
			break
		}
		if err := apply(ctx, q, m); err != nil {
			return err
		}
	}
	if err := ensureRootFolder(ctx, q); err != nil {
		return err
	}
	return stamp(ctx, q, target)
}

// CheckStatus verifies that the database schema is up-to-date.
func CheckStatus(ctx context.Context, q Querier) error {
	version, err := CurrentVersion(ctx, q)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("database has no schema version (needs migration)")
	}

	latest, err := LatestVersion()
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}
	if version < latest {
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version)
	}
	if version > latest {
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latest)
	}
	return nil
}

func apply(ctx context.Context, q Querier, m Migration) error {
	h := hooks[m.Version]
	if h.before != nil {
		if err := h.before(ctx, q); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			if isAddColumn(stmt) && isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	if h.after != nil {
		if err := h.after(ctx, q); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func execScript(ctx context.Context, q Querier, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func stamp(ctx context.Context, q Querier, version uint) error {
	if _, err := q.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("stamping schema version %d: %w", version, err)
	}
	return nil
}

func ensureRootFolder(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO folders (name, parent_id, path)
		SELECT 'Root', NULL, ''
		WHERE NOT EXISTS (SELECT 1 FROM folders WHERE parent_id IS NULL)`)
	if err != nil {
		return fmt.Errorf("creating root folder: %w", err)
	}
	return nil
}

// detachLegacyTrash moves the single-stage trash table out of the way so the
// two-stage tables can be created under their final names.
func detachLegacyTrash(ctx context.Context, q Querier) error {
	legacy, err := columnExists(ctx, q, "trash", "deleted_date")
	if err != nil || !legacy {
		return err
	}
	for _, stmt := range []string{
		"DROP INDEX IF EXISTS idx_trash_uuid",
		"DROP INDEX IF EXISTS idx_trash_expires_date",
		"ALTER TABLE trash RENAME TO trash_legacy",
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("detaching legacy trash: %w", err)
		}
	}
	return nil
}

// moveLegacyTrashToArchive copies rows of the detached legacy trash into
// archive, which is where soft-deleted animations now live.
func moveLegacyTrashToArchive(ctx context.Context, q Querier) error {
	exists, err := tableExists(ctx, q, "trash_legacy")
	if err != nil || !exists {
		return err
	}
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO archive (id, uuid, name, original_folder_id, original_folder_path,
			rig_type, frame_count, duration_seconds, file_size_mb, archive_folder_path,
			thumbnail_path, archived_date, original_created_date)
		SELECT id, uuid, name, original_folder_id, original_folder_path,
			rig_type, frame_count, duration_seconds, file_size_mb, trash_folder_path,
			thumbnail_path, deleted_date, original_created_date
		FROM trash_legacy`); err != nil {
		return fmt.Errorf("copying legacy trash into archive: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DROP TABLE trash_legacy"); err != nil {
		return fmt.Errorf("dropping legacy trash: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

func columnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// splitStatements splits a script on statement-terminating semicolons.
// Line comments are dropped. Scripts must not put semicolons inside literals.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func isAddColumn(stmt string) bool {
	s := strings.ToUpper(strings.Join(strings.Fields(stmt), " "))
	return strings.HasPrefix(s, "ALTER TABLE") && strings.Contains(s, " ADD COLUMN ")
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
