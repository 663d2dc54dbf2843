package database

import (
	"context"
	"errors"
	"testing"

	"animlib/internal/model"
)

func TestAnimationRepository_CreateNewVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "v1", 0, func(a *model.Animation) {
		a.Tags = []string{"run"}
		a.IsFavorite = true
		a.Status = model.StatusApproved
		a.BlendFilePath = "/lib/run/v001.blend"
	})

	v2, err := db.Animations().CreateNewVersion(ctx, "v1", "v2", VersionFiles{
		BlendFilePath: "/lib/run/v002.blend",
		FrameCount:    60,
	})
	if err != nil {
		t.Fatalf("CreateNewVersion() error = %v", err)
	}
	if v2.Version != 2 || v2.VersionLabel != "v002" || v2.VersionGroupID != "v1" || !v2.IsLatest {
		t.Errorf("new version = %d %q %q latest=%v", v2.Version, v2.VersionLabel, v2.VersionGroupID, v2.IsLatest)
	}
	if v2.BlendFilePath != "/lib/run/v002.blend" || v2.FrameCount != 60 || v2.FrameEnd != 48 {
		t.Errorf("files = %q frames=%d end=%d", v2.BlendFilePath, v2.FrameCount, v2.FrameEnd)
	}
	if !equalStrings(v2.Tags, []string{"run"}) || !v2.IsFavorite {
		t.Errorf("user metadata not carried over: tags=%v fav=%v", v2.Tags, v2.IsFavorite)
	}
	if v2.Status != model.StatusNone {
		t.Errorf("Status = %q, want none", v2.Status)
	}
	assertSingleLatest(t, db, "v1", "v2")

	v3, err := db.Animations().CreateNewVersion(ctx, "v1", "v3", VersionFiles{})
	if err != nil {
		t.Fatalf("CreateNewVersion() from old version error = %v", err)
	}
	if v3.Version != 3 {
		t.Errorf("Version = %d, want 3 (max + 1)", v3.Version)
	}
	assertSingleLatest(t, db, "v1", "v3")

	if _, err := db.Animations().CreateNewVersion(ctx, "missing", "x", VersionFiles{}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CreateNewVersion(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := db.Animations().CreateNewVersion(ctx, "v1", "v2", VersionFiles{}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("CreateNewVersion(duplicate uuid) error = %v, want ErrConflict", err)
	}
	assertSingleLatest(t, db, "v1", "v3")
}

func TestAnimationRepository_VersionQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "v1", 0)
	db.Animations().CreateNewVersion(ctx, "v1", "v2", VersionFiles{})
	db.Animations().CreateNewVersion(ctx, "v2", "v3", VersionFiles{})

	history, err := db.Animations().VersionHistory(ctx, "v1")
	if err != nil {
		t.Fatalf("VersionHistory() error = %v", err)
	}
	if got := uuids(history); !equalStrings(got, []string{"v3", "v2", "v1"}) {
		t.Errorf("VersionHistory() = %v, want newest first", got)
	}

	n, _ := db.Animations().VersionCount(ctx, "v1")
	if n != 3 {
		t.Errorf("VersionCount() = %d, want 3", n)
	}
	highest, _ := db.Animations().MaxVersion(ctx, "v1")
	if highest != 3 {
		t.Errorf("MaxVersion() = %d, want 3", highest)
	}
	if highest, _ := db.Animations().MaxVersion(ctx, "nope"); highest != 0 {
		t.Errorf("MaxVersion(unknown) = %d, want 0", highest)
	}

	latest, err := db.Animations().LatestVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest.UUID != "v3" {
		t.Errorf("LatestVersion() = %s, want v3", latest.UUID)
	}
	if _, err := db.Animations().LatestVersion(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LatestVersion(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestAnimationRepository_SetAsLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "v1", 0)
	db.Animations().CreateNewVersion(ctx, "v1", "v2", VersionFiles{})

	if err := db.Animations().SetAsLatest(ctx, "v1"); err != nil {
		t.Fatalf("SetAsLatest() error = %v", err)
	}
	assertSingleLatest(t, db, "v1", "v1")

	list, _ := db.Animations().List(ctx, ListOptions{})
	if got := uuids(list); !equalStrings(got, []string{"v1"}) {
		t.Errorf("List() = %v, want only the latest", got)
	}

	if err := db.Animations().SetAsLatest(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("SetAsLatest(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAnimationRepository_InitializeVersionGroup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "u1", 0)

	changed, err := db.Animations().InitializeVersionGroup(ctx, "u1")
	if err != nil {
		t.Fatalf("InitializeVersionGroup() error = %v", err)
	}
	if changed {
		t.Error("InitializeVersionGroup() changed an animation that already had a group")
	}

	if _, err := db.db.ExecContext(ctx,
		"UPDATE animations SET version_group_id = NULL, is_latest = 0, version = 4 WHERE uuid = 'u1'"); err != nil {
		t.Fatalf("clearing group: %v", err)
	}
	changed, err = db.Animations().InitializeVersionGroup(ctx, "u1")
	if err != nil || !changed {
		t.Fatalf("InitializeVersionGroup() = %v, %v; want true", changed, err)
	}
	a, _ := db.Animations().GetByUUID(ctx, "u1")
	if a.VersionGroupID != "u1" || a.Version != 1 || a.VersionLabel != "v001" || !a.IsLatest {
		t.Errorf("after init = %q %d %q %v", a.VersionGroupID, a.Version, a.VersionLabel, a.IsLatest)
	}
}

func TestOneLatestIndex(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "v1", 0)
	addAnimation(t, db, "v2", 0, func(a *model.Animation) { a.VersionGroupID = "v1"; a.Version = 2 })

	_, err := db.db.ExecContext(ctx, "UPDATE animations SET is_latest = 1 WHERE uuid = 'v2'")
	if err == nil {
		t.Fatal("raw update to a second latest row should violate the unique index")
	}
	if !errors.Is(classify(err), model.ErrConflict) {
		t.Errorf("classify() = %v, want ErrConflict", classify(err))
	}
}
