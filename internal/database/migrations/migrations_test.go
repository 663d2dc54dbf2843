package migrations

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestLoad(t *testing.T) {
	migs, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(migs) != 11 {
		t.Fatalf("Load() returned %d migrations, want 11", len(migs))
	}
	for i, m := range migs {
		if m.Version != uint(i+1) {
			t.Errorf("migrations[%d].Version = %d, want %d", i, m.Version, i+1)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %d has no SQL", m.Version)
		}
	}

	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest != 11 {
		t.Errorf("LatestVersion() = %d, want 11", latest)
	}
}

func TestUpgrade_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res := upgrade(t, db)
	if !res.Fresh || res.From != 0 || res.To != 11 {
		t.Errorf("Upgrade() = %+v, want fresh 0 -> 11", res)
	}

	for _, table := range []string{"schema_version", "folders", "animations", "archive", "trash", "review_notes"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}

	version, err := CurrentVersion(ctx, db)
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if version != 11 {
		t.Errorf("CurrentVersion() = %d, want 11", version)
	}

	var roots int
	if err := db.QueryRow("SELECT COUNT(*) FROM folders WHERE parent_id IS NULL AND path = '' AND name = 'Root'").Scan(&roots); err != nil {
		t.Fatalf("counting roots: %v", err)
	}
	if roots != 1 {
		t.Errorf("root folders = %d, want 1", roots)
	}
}

func TestUpgrade_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	upgrade(t, db)
	before, err := ReadSignature(ctx, db)
	if err != nil {
		t.Fatalf("ReadSignature() error = %v", err)
	}

	res := upgrade(t, db)
	if res.Applied() {
		t.Errorf("second Upgrade() = %+v, want no-op", res)
	}

	after, err := ReadSignature(ctx, db)
	if err != nil {
		t.Fatalf("ReadSignature() error = %v", err)
	}
	if diff := before.Diff(after); len(diff) != 0 {
		t.Errorf("schema changed on second upgrade: %v", diff)
	}

	var stamps, roots int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&stamps)
	db.QueryRow("SELECT COUNT(*) FROM folders WHERE parent_id IS NULL").Scan(&roots)
	if stamps != 1 || roots != 1 {
		t.Errorf("after two upgrades: stamps = %d, roots = %d, want 1 and 1", stamps, roots)
	}
}

func TestUpgrade_FreshMatchesMigrated(t *testing.T) {
	ctx := context.Background()

	fresh := openTestDB(t)
	upgrade(t, fresh)
	want, err := ReadSignature(ctx, fresh)
	if err != nil {
		t.Fatalf("ReadSignature(fresh) error = %v", err)
	}

	for start := uint(1); start <= 10; start++ {
		db := openTestDB(t)
		if err := ApplyThrough(ctx, db, start); err != nil {
			t.Fatalf("ApplyThrough(%d) error = %v", start, err)
		}
		res := upgrade(t, db)
		if res.Fresh || res.From != start || res.To != 11 {
			t.Errorf("Upgrade() from v%d = %+v", start, res)
		}

		got, err := ReadSignature(ctx, db)
		if err != nil {
			t.Fatalf("ReadSignature(v%d) error = %v", start, err)
		}
		if diff := want.Diff(got); len(diff) != 0 {
			t.Errorf("schema migrated from v%d differs from fresh schema:\n%s", start, strings.Join(diff, "\n"))
		}
	}
}

func TestUpgrade_PreservesDataFromV1(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ApplyThrough(ctx, db, 1); err != nil {
		t.Fatalf("ApplyThrough(1) error = %v", err)
	}
	mustExec(t, db, `INSERT INTO folders (name, parent_id, path) VALUES ('Body', 1, 'Body')`)
	mustExec(t, db, `INSERT INTO animations (uuid, name, folder_id, rig_type, tags) VALUES ('a-1', 'walk', 2, 'rigify', '["loop"]')`)

	upgrade(t, db)

	var (
		name, label, group, status, tags string
		version, latest, pose, partial   int
	)
	err := db.QueryRow(`
		SELECT name, version, version_label, version_group_id, is_latest, status, is_pose, is_partial, tags
		FROM animations WHERE uuid = 'a-1'`).Scan(&name, &version, &label, &group, &latest, &status, &pose, &partial, &tags)
	if err != nil {
		t.Fatalf("reading migrated animation: %v", err)
	}
	if name != "walk" || tags != `["loop"]` {
		t.Errorf("user data changed: name = %q, tags = %q", name, tags)
	}
	if version != 1 || label != "v001" || group != "a-1" || latest != 1 {
		t.Errorf("version backfill = (%d, %q, %q, %d), want (1, v001, a-1, 1)", version, label, group, latest)
	}
	if status != "none" || pose != 0 || partial != 0 {
		t.Errorf("status/pose backfill = (%q, %d, %d), want (none, 0, 0)", status, pose, partial)
	}
}

func TestUpgrade_LegacyTrashBecomesArchive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ApplyThrough(ctx, db, 3); err != nil {
		t.Fatalf("ApplyThrough(3) error = %v", err)
	}
	mustExec(t, db, `
		INSERT INTO trash (uuid, name, original_folder_path, trash_folder_path, deleted_date)
		VALUES ('gone-1', 'old run', 'Body', '/lib/.trash/gone-1', '2023-05-01 10:00:00')`)

	upgrade(t, db)

	var name, archivePath, folderPath string
	err := db.QueryRow(`SELECT name, archive_folder_path, original_folder_path FROM archive WHERE uuid = 'gone-1'`).
		Scan(&name, &archivePath, &folderPath)
	if err != nil {
		t.Fatalf("legacy trash row not in archive: %v", err)
	}
	if archivePath != "/lib/.trash/gone-1" || folderPath != "Body" {
		t.Errorf("archive row = (%q, %q), want legacy values", archivePath, folderPath)
	}

	var trashRows int
	db.QueryRow("SELECT COUNT(*) FROM trash").Scan(&trashRows)
	if trashRows != 0 {
		t.Errorf("new trash has %d rows, want 0", trashRows)
	}
	if ok, _ := columnExists(ctx, db, "trash", "trashed_date"); !ok {
		t.Error("trash table was not replaced by the two-stage layout")
	}
	if ok, _ := tableExists(ctx, db, "trash_legacy"); ok {
		t.Error("trash_legacy was left behind")
	}
}

func TestUpgrade_SingleLatestPerGroup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ApplyThrough(ctx, db, 9); err != nil {
		t.Fatalf("ApplyThrough(9) error = %v", err)
	}
	for _, stmt := range []string{
		`INSERT INTO animations (uuid, name, folder_id, rig_type, version, version_group_id, is_latest) VALUES ('g-v1', 'jump', 1, 'r', 1, 'g', 1)`,
		`INSERT INTO animations (uuid, name, folder_id, rig_type, version, version_group_id, is_latest) VALUES ('g-v3', 'jump', 1, 'r', 3, 'g', 1)`,
		`INSERT INTO animations (uuid, name, folder_id, rig_type, version, version_group_id, is_latest) VALUES ('g-v2', 'jump', 1, 'r', 2, 'g', 1)`,
	} {
		mustExec(t, db, stmt)
	}

	upgrade(t, db)

	var latest string
	if err := db.QueryRow("SELECT uuid FROM animations WHERE version_group_id = 'g' AND is_latest = 1").Scan(&latest); err != nil {
		t.Fatalf("reading latest: %v", err)
	}
	if latest != "g-v3" {
		t.Errorf("latest = %q, want g-v3", latest)
	}

	_, err := db.Exec("UPDATE animations SET is_latest = 1 WHERE uuid = 'g-v1'")
	if err == nil {
		t.Error("second latest in a group was accepted, want unique index violation")
	}
}

func TestUpgrade_UnversionedDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Baseline tables present, but no version marker.
	if err := ApplyThrough(ctx, db, 1); err != nil {
		t.Fatalf("ApplyThrough(1) error = %v", err)
	}
	mustExec(t, db, "DROP TABLE schema_version")

	res := upgrade(t, db)
	if res.Fresh || res.From != 1 {
		t.Errorf("Upgrade() = %+v, want migration from 1", res)
	}
}

func TestUpgrade_ToleratesExistingColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ApplyThrough(ctx, db, 1); err != nil {
		t.Fatalf("ApplyThrough(1) error = %v", err)
	}
	// A column from migration 2 that some builds added early.
	mustExec(t, db, "ALTER TABLE animations ADD COLUMN is_favorite INTEGER DEFAULT 0")

	upgrade(t, db)
}

func TestUpgrade_RollsBackOnFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ApplyThrough(ctx, db, 8); err != nil {
		t.Fatalf("ApplyThrough(8) error = %v", err)
	}
	// Occupy the name migration 9 needs, with an incompatible shape.
	mustExec(t, db, "CREATE VIEW review_notes AS SELECT 1 AS x")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := Upgrade(ctx, tx); err == nil {
		t.Fatal("Upgrade() error = nil, want failure")
	}
	tx.Rollback()

	version, err := CurrentVersion(ctx, db)
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if version != 8 {
		t.Errorf("CurrentVersion() after failed upgrade = %d, want 8", version)
	}
	if ok, _ := columnExists(ctx, db, "animations", "naming_fields"); !ok {
		t.Error("pre-existing v8 columns disappeared")
	}
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)
		err := CheckStatus(ctx, db)
		if err == nil || err.Error() != "database has no schema version (needs migration)" {
			t.Errorf("CheckStatus() error = %v", err)
		}
	})

	t.Run("behind", func(t *testing.T) {
		db := openTestDB(t)
		if err := ApplyThrough(ctx, db, 5); err != nil {
			t.Fatalf("ApplyThrough(5) error = %v", err)
		}
		if err := CheckStatus(ctx, db); err == nil {
			t.Error("CheckStatus() error = nil, want behind error")
		}
	})

	t.Run("current", func(t *testing.T) {
		db := openTestDB(t)
		upgrade(t, db)
		if err := CheckStatus(ctx, db); err != nil {
			t.Errorf("CheckStatus() error = %v", err)
		}
	})
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n  -- note\nCREATE INDEX i ON a(x);\n")
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %q, want 2 statements", got)
	}
	if !isAddColumn("ALTER TABLE animations\n    ADD COLUMN x INTEGER") {
		t.Error("isAddColumn() = false for multi-line ADD COLUMN")
	}
	if isAddColumn("CREATE TABLE t (x INT)") {
		t.Error("isAddColumn() = true for CREATE TABLE")
	}
}

// upgrade runs Upgrade in its own transaction and fails the test on error.
func upgrade(t *testing.T, db *sql.DB) Result {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	defer tx.Rollback()

	res, err := Upgrade(ctx, tx)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return res
}

func mustExec(t *testing.T, db *sql.DB, stmt string) {
	t.Helper()
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("Exec(%q) error = %v", stmt, err)
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	return db
}
