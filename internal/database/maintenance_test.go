package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"animlib/internal/model"
)

func TestBackup(t *testing.T) {
	db, _ := newFileDB(t)
	ctx := context.Background()
	addAnimation(t, db, "u1", 0)

	first, err := db.Backup(ctx, "")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if filepath.Dir(first) != db.BackupDir() {
		t.Errorf("Backup() dir = %s, want %s", filepath.Dir(first), db.BackupDir())
	}
	if filepath.Base(first) != "database_backup_20240115_103000.db" {
		t.Errorf("Backup() name = %s", filepath.Base(first))
	}

	// same clock tick: the second backup must not overwrite the first
	second, err := db.Backup(ctx, "")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if second == first || !strings.HasSuffix(second, "_1.db") {
		t.Errorf("second Backup() = %s, want a _1 suffix", second)
	}

	backup, err := Open(ctx, first, Options{})
	if err != nil {
		t.Fatalf("Open(backup) error = %v", err)
	}
	defer backup.Close()
	if ok, _ := backup.Animations().Exists(ctx, "u1"); !ok {
		t.Error("backup is missing animation u1")
	}

	leftovers, _ := filepath.Glob(filepath.Join(db.BackupDir(), ".backup-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestBackup_MemoryNeedsDir(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Backup(context.Background(), ""); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("Backup() error = %v, want ErrInvalid", err)
	}
	path, err := db.Backup(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Backup(dir) error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("backup file: %v", err)
	}
}

func TestListAndPruneBackups(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	names := []string{
		"database_backup_20240101_000000.db",
		"database_backup_20240102_000000.db.age",
		"database_backup_20240103_000000.db",
		"notes.txt",
	}
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("ListBackups() = %d entries, want 3", len(backups))
	}
	if backups[0].Name != names[2] || !backups[1].Encrypted || backups[2].Encrypted {
		t.Errorf("ListBackups() order = %s, %s, %s", backups[0].Name, backups[1].Name, backups[2].Name)
	}

	removed, err := PruneBackups(dir, 2)
	if err != nil {
		t.Fatalf("PruneBackups() error = %v", err)
	}
	if len(removed) != 1 || filepath.Base(removed[0]) != names[0] {
		t.Errorf("PruneBackups() removed %v, want the oldest", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("PruneBackups() touched a non-backup file")
	}

	if missing, err := ListBackups(filepath.Join(dir, "nope")); err != nil || missing != nil {
		t.Errorf("ListBackups(missing) = %v, %v", missing, err)
	}
	if removed, _ := PruneBackups(dir, 0); removed != nil {
		t.Errorf("PruneBackups(keep=0) removed %v", removed)
	}
}

func TestRestoreBackup(t *testing.T) {
	db, _ := newFileDB(t)
	ctx := context.Background()
	addAnimation(t, db, "before", 0)

	path, err := db.Backup(ctx, "")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	addAnimation(t, db, "after", 0)

	if _, err := db.RestoreBackup(ctx, path); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if ok, _ := db.Animations().Exists(ctx, "before"); !ok {
		t.Error("restored database is missing 'before'")
	}
	if ok, _ := db.Animations().Exists(ctx, "after"); ok {
		t.Error("restored database still has 'after'")
	}

	if _, err := db.RestoreBackup(ctx, path+".age"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("RestoreBackup(encrypted) error = %v, want ErrInvalid", err)
	}
	if _, err := db.RestoreBackup(ctx, filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("RestoreBackup(missing) error = nil")
	}
}

func TestIntegrityCheck(t *testing.T) {
	db := newTestDB(t)
	addAnimation(t, db, "u1", 0)

	report, err := db.IntegrityCheck(context.Background())
	if err != nil {
		t.Fatalf("IntegrityCheck() error = %v", err)
	}
	if !report.OK {
		t.Errorf("IntegrityCheck() = %+v, want OK", report)
	}
}

func TestOptimizeAndStats(t *testing.T) {
	db, _ := newFileDB(t)
	ctx := context.Background()
	addAnimation(t, db, "v1", 0)
	db.Animations().CreateNewVersion(ctx, "v1", "v2", VersionFiles{})
	db.ReviewNotes().Add(ctx, "v2", 1, "note", "")
	db.Archive().Add(ctx, &model.ArchiveItem{UUID: "gone", Name: "gone", ArchiveFolderPath: "/a"})

	res, err := db.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if res.SizeBefore <= 0 || res.SizeAfter <= 0 {
		t.Errorf("Optimize() = %+v, want positive sizes", res)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := Stats{SchemaVersion: stats.SchemaVersion, SizeBytes: stats.SizeBytes,
		Folders: 1, Animations: 2, Latest: 1, Archived: 1, Trashed: 0, ReviewNotes: 1}
	if *stats != want {
		t.Errorf("Stats() = %+v, want %+v", *stats, want)
	}
	if stats.SchemaVersion == 0 {
		t.Error("Stats().SchemaVersion = 0")
	}
}

func TestMigrateLegacyFile(t *testing.T) {
	t.Run("moves database and sidecars", func(t *testing.T) {
		dir := t.TempDir()
		legacy := filepath.Join(dir, "library", LegacyFileName)
		path := filepath.Join(dir, "data", FileName)
		os.MkdirAll(filepath.Dir(legacy), 0755)
		os.WriteFile(legacy, []byte("db"), 0644)
		os.WriteFile(legacy+"-wal", []byte("wal"), 0644)

		moved, err := MigrateLegacyFile(path, legacy)
		if err != nil || !moved {
			t.Fatalf("MigrateLegacyFile() = %v, %v; want true", moved, err)
		}
		if data, _ := os.ReadFile(path); string(data) != "db" {
			t.Errorf("moved database = %q", data)
		}
		if data, _ := os.ReadFile(path + "-wal"); string(data) != "wal" {
			t.Errorf("moved wal = %q", data)
		}
		if _, err := os.Stat(legacy); !errors.Is(err, os.ErrNotExist) {
			t.Error("legacy file still present")
		}
	})

	t.Run("existing database wins", func(t *testing.T) {
		dir := t.TempDir()
		legacy := filepath.Join(dir, LegacyFileName)
		path := filepath.Join(dir, FileName)
		os.WriteFile(legacy, []byte("old"), 0644)
		os.WriteFile(path, []byte("new"), 0644)

		moved, err := MigrateLegacyFile(path, legacy)
		if err != nil || moved {
			t.Errorf("MigrateLegacyFile() = %v, %v; want false", moved, err)
		}
		if data, _ := os.ReadFile(path); string(data) != "new" {
			t.Errorf("database overwritten: %q", data)
		}
	})

	t.Run("no legacy file", func(t *testing.T) {
		dir := t.TempDir()
		moved, err := MigrateLegacyFile(filepath.Join(dir, FileName), filepath.Join(dir, LegacyFileName))
		if err != nil || moved {
			t.Errorf("MigrateLegacyFile() = %v, %v; want false", moved, err)
		}
	})
}
