package database

import (
	"context"
	"errors"
	"testing"

	"animlib/internal/model"
)

func TestAnimationRepository_AllMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	folder, _ := db.Folders().EnsureExists(ctx, "Combat/Sword", "")

	addAnimation(t, db, "rich", folder, func(a *model.Animation) {
		a.Tags = []string{"slash"}
		a.IsFavorite = true
		a.Gradient = model.Gradient{Enabled: true, Top: "#111", Bottom: "#222"}
		a.Status = model.StatusWIP
		a.NamingFields = map[string]string{"side": "R"}
	})
	addAnimation(t, db, "plain", 0)

	all, err := db.Animations().AllMetadata(ctx)
	if err != nil {
		t.Fatalf("AllMetadata() error = %v", err)
	}
	rich := all["rich"]
	if rich.FolderPath != "Combat/Sword" || !rich.IsFavorite || rich.Status != model.StatusWIP {
		t.Errorf("rich metadata = %+v", rich)
	}
	if rich.Gradient == nil || rich.Gradient.Top != "#111" {
		t.Errorf("Gradient = %+v", rich.Gradient)
	}
	if !equalStrings(rich.Tags, []string{"slash"}) || rich.NamingFields["side"] != "R" {
		t.Errorf("tags/naming = %v %v", rich.Tags, rich.NamingFields)
	}

	plain, ok := all["plain"]
	if !ok {
		t.Fatal("plain animation missing from metadata")
	}
	if plain.Gradient != nil || plain.Tags != nil || plain.Status != "" || plain.FolderPath != "" {
		t.Errorf("plain metadata = %+v, want only version fields", plain)
	}
	if plain.VersionGroupID != "plain" || !plain.IsLatest {
		t.Errorf("plain version = %q %v", plain.VersionGroupID, plain.IsLatest)
	}
}

func TestAnimationRepository_ApplyMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	folder, _ := db.Folders().EnsureExists(ctx, "Idles", "")
	addAnimation(t, db, "u1", 0, func(a *model.Animation) { a.Tags = []string{"calm"} })

	err := db.Animations().ApplyMetadata(ctx, "u1", model.Metadata{
		Tags:       []string{"loop", "calm"},
		IsFavorite: true,
		IsLocked:   true,
		Gradient:   &model.Gradient{Enabled: true, Top: "#abc", Bottom: "#def"},
		FolderPath: "Idles",
		Status:     model.StatusFinal,
		IsPose:     true,
	})
	if err != nil {
		t.Fatalf("ApplyMetadata() error = %v", err)
	}
	a, _ := db.Animations().GetByUUID(ctx, "u1")
	if !equalStrings(a.Tags, []string{"calm", "loop"}) {
		t.Errorf("Tags = %v, want union [calm loop]", a.Tags)
	}
	if !a.IsFavorite || !a.IsLocked || !a.Gradient.Enabled || a.FolderID != folder {
		t.Errorf("after ApplyMetadata() = %+v", a)
	}
	if a.Status != model.StatusFinal || !a.IsPose {
		t.Errorf("status/pose = %q %v", a.Status, a.IsPose)
	}

	// a folder that no longer exists is skipped, not an error
	if err := db.Animations().ApplyMetadata(ctx, "u1", model.Metadata{FolderPath: "Gone"}); err != nil {
		t.Errorf("ApplyMetadata(missing folder) error = %v", err)
	}
	if err := db.Animations().ApplyMetadata(ctx, "missing", model.Metadata{IsFavorite: true}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ApplyMetadata(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAnimationRepository_ApplyAllMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	addAnimation(t, db, "a", 0)
	addAnimation(t, db, "b", 0)

	n, err := db.Animations().ApplyAllMetadata(ctx, map[string]model.Metadata{
		"a":       {IsFavorite: true},
		"b":       {Tags: []string{"x"}},
		"unknown": {IsFavorite: true},
	})
	if err != nil {
		t.Fatalf("ApplyAllMetadata() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ApplyAllMetadata() = %d, want 2", n)
	}
	favs, _ := db.Animations().Favorites(ctx)
	if len(favs) != 1 || favs[0].UUID != "a" {
		t.Errorf("Favorites() = %v, want [a]", uuids(favs))
	}
}
