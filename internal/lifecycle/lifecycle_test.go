package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"animlib/internal/database"
	"animlib/internal/lifecycle"
	"animlib/internal/model"
	"animlib/internal/testutil"
)

func setup(t *testing.T) (*lifecycle.Service, *database.Database, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabaseWithClock(t, clock)
	return lifecycle.New(db, nil), db, clock
}

func addAnimation(t *testing.T, db *database.Database, uuid, folderPath string) *model.Animation {
	t.Helper()
	ctx := context.Background()
	folderID, err := db.Folders().EnsureExists(ctx, folderPath, "")
	if err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	a := &model.Animation{
		UUID:            uuid,
		Name:            "anim " + uuid,
		FolderID:        folderID,
		RigType:         "rigify",
		FrameCount:      48,
		DurationSeconds: 2,
		FileSizeMB:      1.5,
		ThumbnailPath:   "/lib/" + uuid + "/thumb.png",
	}
	if _, err := db.Animations().Add(ctx, a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return a
}

func assertStage(t *testing.T, svc *lifecycle.Service, uuid string, want lifecycle.Stage) {
	t.Helper()
	got, err := svc.Stage(context.Background(), uuid)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if got != want {
		t.Errorf("Stage(%s) = %v, want %v", uuid, got, want)
	}
}

func TestService_FullPipeline(t *testing.T) {
	ctx := context.Background()
	svc, db, clock := setup(t)
	addAnimation(t, db, "a1", "Combat/Melee")
	if _, err := db.ReviewNotes().Add(ctx, "a1", 10, "fix the foot", "sam"); err != nil {
		t.Fatalf("ReviewNotes().Add() error = %v", err)
	}
	assertStage(t, svc, "a1", lifecycle.StageActive)

	item, err := svc.Archive(ctx, "a1", "/lib/_archive/a1")
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if item.OriginalFolderPath != "Combat/Melee" || item.FrameCount != 48 || item.ArchiveFolderPath != "/lib/_archive/a1" {
		t.Errorf("Archive() = %+v", item)
	}
	archivedAt := item.ArchivedAt
	assertStage(t, svc, "a1", lifecycle.StageArchived)
	if n, _ := db.ReviewNotes().Count(ctx, "a1"); n != 0 {
		t.Errorf("review notes survived archiving: %d", n)
	}

	clock.Advance(time.Hour)
	trashed, err := svc.Trash(ctx, "a1", "/lib/_trash/a1")
	if err != nil {
		t.Fatalf("Trash() error = %v", err)
	}
	if !trashed.ArchivedAt.Equal(archivedAt) || !trashed.TrashedAt.Equal(clock.Now()) {
		t.Errorf("Trash() timestamps = archived %v trashed %v", trashed.ArchivedAt, trashed.TrashedAt)
	}
	assertStage(t, svc, "a1", lifecycle.StageTrashed)

	back, err := svc.RestoreFromTrash(ctx, "a1", "/lib/_archive/a1")
	if err != nil {
		t.Fatalf("RestoreFromTrash() error = %v", err)
	}
	if !back.ArchivedAt.Equal(archivedAt) {
		t.Errorf("ArchivedAt = %v, want original %v", back.ArchivedAt, archivedAt)
	}
	assertStage(t, svc, "a1", lifecycle.StageArchived)

	// the trash keeps only name, thumbnail and archive time, so the rebuilt
	// record falls back to the root folder and the default rig type
	restored, err := svc.RestoreFromArchive(ctx, "a1", nil)
	if err != nil {
		t.Fatalf("RestoreFromArchive() error = %v", err)
	}
	rootID, _ := db.Folders().RootID(ctx)
	if restored.Name != "anim a1" || restored.FolderID != rootID || restored.RigType != model.DefaultRigType {
		t.Errorf("RestoreFromArchive() = %+v", restored)
	}
	if restored.ThumbnailPath != "/lib/a1/thumb.png" {
		t.Errorf("ThumbnailPath = %q", restored.ThumbnailPath)
	}
	if !restored.IsLatest || restored.VersionGroupID != "a1" {
		t.Errorf("restored version fields = latest %v group %q", restored.IsLatest, restored.VersionGroupID)
	}
	assertStage(t, svc, "a1", lifecycle.StageActive)
}

func TestService_RestoreFromArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds from the archive entry", func(t *testing.T) {
		svc, db, _ := setup(t)
		addAnimation(t, db, "a1", "Combat/Melee")
		if _, err := svc.Archive(ctx, "a1", "/lib/_archive/a1"); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}

		restored, err := svc.RestoreFromArchive(ctx, "a1", nil)
		if err != nil {
			t.Fatalf("RestoreFromArchive() error = %v", err)
		}
		folder, _ := db.Folders().GetByPath(ctx, "Combat/Melee")
		if restored.FolderID != folder.ID || restored.RigType != "rigify" || restored.FrameCount != 48 {
			t.Errorf("RestoreFromArchive() = %+v", restored)
		}
	})

	t.Run("inserts the given record", func(t *testing.T) {
		svc, db, _ := setup(t)
		addAnimation(t, db, "a1", "Combat/Melee")
		if _, err := svc.Archive(ctx, "a1", "/lib/_archive/a1"); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}

		restored, err := svc.RestoreFromArchive(ctx, "a1", &model.Animation{
			UUID:          "ignored",
			Name:          "from manifest",
			RigType:       "mixamo",
			FPS:           30,
			Tags:          []string{"loop"},
			BlendFilePath: "/lib/library/a1/a1.blend",
		})
		if err != nil {
			t.Fatalf("RestoreFromArchive() error = %v", err)
		}
		folder, _ := db.Folders().GetByPath(ctx, "Combat/Melee")
		if restored.UUID != "a1" || restored.FolderID != folder.ID {
			t.Errorf("identity = %q folder %d, want a1 folder %d", restored.UUID, restored.FolderID, folder.ID)
		}
		if restored.Name != "from manifest" || restored.RigType != "mixamo" || restored.FPS != 30 {
			t.Errorf("RestoreFromArchive() = %+v", restored)
		}
		if len(restored.Tags) != 1 || restored.Tags[0] != "loop" || restored.BlendFilePath != "/lib/library/a1/a1.blend" {
			t.Errorf("tags %v blend %q", restored.Tags, restored.BlendFilePath)
		}
		assertStage(t, svc, "a1", lifecycle.StageActive)
	})
}

func TestService_Exclusivity(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t)
	addAnimation(t, db, "a1", "")

	// a stale archive entry for an active uuid blocks archiving
	if _, err := db.Archive().Add(ctx, &model.ArchiveItem{UUID: "a1", Name: "stale", ArchiveFolderPath: "/x"}); err != nil {
		t.Fatalf("Archive().Add() error = %v", err)
	}
	if _, err := svc.Archive(ctx, "a1", "/lib/_archive/a1"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("Archive() error = %v, want ErrConflict", err)
	}
	if _, err := svc.RestoreFromArchive(ctx, "a1", nil); !errors.Is(err, model.ErrConflict) {
		t.Errorf("RestoreFromArchive() error = %v, want ErrConflict", err)
	}
	if _, err := svc.Trash(ctx, "a1", "/lib/_trash/a1"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("Trash() error = %v, want ErrConflict", err)
	}

	// failed transitions leave every stage untouched
	if ok, _ := db.Animations().Exists(ctx, "a1"); !ok {
		t.Error("active record lost")
	}
	if ok, _ := db.Archive().Exists(ctx, "a1"); !ok {
		t.Error("archive record lost")
	}
	if ok, _ := db.Trash().Exists(ctx, "a1"); ok {
		t.Error("trash record created")
	}
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"archive", func() error { _, err := svc.Archive(ctx, "nope", "/a"); return err }},
		{"restore from archive", func() error { _, err := svc.RestoreFromArchive(ctx, "nope", nil); return err }},
		{"trash", func() error { _, err := svc.Trash(ctx, "nope", "/t"); return err }},
		{"restore from trash", func() error { _, err := svc.RestoreFromTrash(ctx, "nope", "/a"); return err }},
		{"purge", func() error { _, err := svc.Purge(ctx, "nope"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
	assertStage(t, svc, "nope", lifecycle.StageNone)
}

func TestService_ArchiveNeedsPath(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t)
	addAnimation(t, db, "a1", "")

	if _, err := svc.Archive(ctx, "a1", ""); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("Archive(no path) error = %v, want ErrInvalid", err)
	}
	assertStage(t, svc, "a1", lifecycle.StageActive)
}

func TestService_RestoreRecreatesDeletedFolder(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t)
	addAnimation(t, db, "a1", "Props/Doors")

	if _, err := svc.Archive(ctx, "a1", "/lib/_archive/a1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	props, _ := db.Folders().GetByPath(ctx, "Props")
	if err := db.Folders().Delete(ctx, props.ID); err != nil {
		t.Fatalf("Folders().Delete() error = %v", err)
	}

	manifest := &model.Animation{Name: "Door Open", RigType: "prop", FrameCount: 12, Tags: []string{"door"}}
	restored, err := svc.RestoreFromArchive(ctx, "a1", manifest)
	if err != nil {
		t.Fatalf("RestoreFromArchive() error = %v", err)
	}
	folder, err := db.Folders().GetByPath(ctx, "Props/Doors")
	if err != nil {
		t.Fatalf("folder not recreated: %v", err)
	}
	if restored.FolderID != folder.ID || restored.Name != "Door Open" || restored.UUID != "a1" {
		t.Errorf("RestoreFromArchive() = %+v", restored)
	}
}

func TestService_PurgeAndEmptyTrash(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t)
	for _, uuid := range []string{"a1", "a2", "a3"} {
		addAnimation(t, db, uuid, "")
		if _, err := svc.Archive(ctx, uuid, "/lib/_archive/"+uuid); err != nil {
			t.Fatalf("Archive(%s) error = %v", uuid, err)
		}
		if _, err := svc.Trash(ctx, uuid, "/lib/_trash/"+uuid); err != nil {
			t.Fatalf("Trash(%s) error = %v", uuid, err)
		}
	}

	item, err := svc.Purge(ctx, "a1")
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if item.TrashFolderPath != "/lib/_trash/a1" {
		t.Errorf("Purge() = %+v", item)
	}
	assertStage(t, svc, "a1", lifecycle.StageNone)

	items, err := svc.EmptyTrash(ctx)
	if err != nil {
		t.Fatalf("EmptyTrash() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("EmptyTrash() removed %d, want 2", len(items))
	}
	if n, _ := db.Trash().Count(ctx); n != 0 {
		t.Errorf("trash count = %d after EmptyTrash", n)
	}

	items, err = svc.EmptyTrash(ctx)
	if err != nil || len(items) != 0 {
		t.Errorf("EmptyTrash() on empty trash = %v, %v", items, err)
	}
}
