package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"animlib/internal/fs"
	"animlib/internal/model"
	"animlib/internal/scanner"
)

// Hidden stage directories under the library root. The scanner's default
// ignore pattern skips them.
const (
	archiveDirName = ".archive"
	trashDirName   = ".trash"
)

func (a *App) stageDir(stage, uuid string) (string, error) {
	root, err := a.libraryRoot("")
	if err != nil {
		return "", err
	}
	return filepath.Join(root, stage, uuid), nil
}

// animationDir is the directory holding an animation's files, or "" when no
// file path was recorded.
func animationDir(anim *model.Animation) string {
	for _, p := range []string{anim.JSONFilePath, anim.BlendFilePath} {
		if p != "" {
			return filepath.Dir(p)
		}
	}
	return ""
}

// moveDir moves src to dst, replacing whatever is at dst. It reports whether
// anything was moved; a missing src is not an error.
func moveDir(src, dst string) (bool, error) {
	if src == "" {
		return false, nil
	}
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := os.RemoveAll(dst); err != nil {
		return false, fmt.Errorf("clearing %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return false, fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}
	return true, nil
}

// moveBack undoes a moveDir after the database rejected the transition.
func (a *App) moveBack(moved bool, src, dst string) {
	if !moved {
		return
	}
	if err := os.Rename(dst, src); err != nil {
		a.logger.Error("could not move files back", "from", dst, "to", src, "error", err)
	}
}

// Archive moves an active animation's files into the library's archive
// directory and records it in the archive.
func (a *App) Archive(ctx context.Context, uuid string) (*model.ArchiveItem, error) {
	anim, err := a.db.Animations().GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	dest, err := a.stageDir(archiveDirName, uuid)
	if err != nil {
		return nil, err
	}

	src := animationDir(anim)
	moved, err := moveDir(src, dest)
	if err != nil {
		return nil, err
	}
	item, err := a.lifecycle.Archive(ctx, uuid, dest)
	if err != nil {
		a.moveBack(moved, src, dest)
		return nil, err
	}
	a.logger.Debug("moved animation files", "uuid", uuid, "to", dest, "moved", moved)
	return item, nil
}

// RestoreFromArchive moves an archived animation's files back into the
// library and makes it active again.
func (a *App) RestoreFromArchive(ctx context.Context, uuid string) (*model.Animation, error) {
	item, err := a.db.Archive().GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	root, err := a.libraryRoot("")
	if err != nil {
		return nil, err
	}

	src := item.ArchiveFolderPath
	manifest := findManifestFile(src)
	dirName := uuid
	if manifest != "" {
		dirName = strings.TrimSuffix(filepath.Base(manifest), ".json")
	}
	dest := filepath.Join(root, "library", dirName)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", model.ErrConflict, dest)
	}

	moved, err := moveDir(src, dest)
	if err != nil {
		return nil, err
	}

	// Without a manifest the record is rebuilt from the archive entry alone.
	var anim *model.Animation
	if moved && manifest != "" {
		anim, err = a.restoredAnimation(ctx, item, filepath.Join(dest, filepath.Base(manifest)))
		if err != nil {
			a.moveBack(moved, src, dest)
			return nil, err
		}
	}
	restored, err := a.lifecycle.RestoreFromArchive(ctx, uuid, anim)
	if err != nil {
		a.moveBack(moved, src, dest)
		return nil, err
	}
	a.logger.Debug("moved animation files", "uuid", uuid, "to", dest, "moved", moved, "from_manifest", anim != nil)
	return restored, nil
}

// restoredAnimation rebuilds an archived animation from its manifest, with
// every file path pointing into the manifest's new directory.
func (a *App) restoredAnimation(ctx context.Context, item *model.ArchiveItem, manifest string) (*model.Animation, error) {
	m, err := fs.ReadManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("reading restored manifest: %w", err)
	}
	anim := scanner.FromManifest(m, fs.LayoutOf(manifest))
	if anim.Name == "" {
		anim.Name = item.Name
	}

	dir := filepath.Dir(manifest)
	for _, p := range []*string{&anim.BlendFilePath, &anim.PreviewPath, &anim.ThumbnailPath} {
		if *p != "" {
			*p = filepath.Join(dir, filepath.Base(*p))
		}
	}
	anim.JSONFilePath = manifest
	if thumb := filepath.Join(dir, "thumbnail.png"); anim.ThumbnailPath == "" && fileExists(thumb) {
		anim.ThumbnailPath = thumb
	}

	// An entry that came back through the trash no longer knows its folder.
	if path := model.CleanFolderPath(m.FolderPath); item.OriginalFolderPath == "" && path != "" {
		id, err := a.db.Folders().EnsureExists(ctx, path, m.FolderDescription)
		if err != nil {
			return nil, fmt.Errorf("creating folder %s: %w", path, err)
		}
		anim.FolderID = id
	}
	return anim, nil
}

// Trash moves an archived animation's files into the trash directory.
func (a *App) Trash(ctx context.Context, uuid string) (*model.TrashItem, error) {
	item, err := a.db.Archive().GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	dest, err := a.stageDir(trashDirName, uuid)
	if err != nil {
		return nil, err
	}

	moved, err := moveDir(item.ArchiveFolderPath, dest)
	if err != nil {
		return nil, err
	}
	trashed, err := a.lifecycle.Trash(ctx, uuid, dest)
	if err != nil {
		a.moveBack(moved, item.ArchiveFolderPath, dest)
		return nil, err
	}
	a.logger.Debug("moved animation files", "uuid", uuid, "to", dest, "moved", moved)
	return trashed, nil
}

// RestoreFromTrash moves a trashed animation back into the archive.
func (a *App) RestoreFromTrash(ctx context.Context, uuid string) (*model.ArchiveItem, error) {
	item, err := a.db.Trash().GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	dest, err := a.stageDir(archiveDirName, uuid)
	if err != nil {
		return nil, err
	}

	moved, err := moveDir(item.TrashFolderPath, dest)
	if err != nil {
		return nil, err
	}
	archived, err := a.lifecycle.RestoreFromTrash(ctx, uuid, dest)
	if err != nil {
		a.moveBack(moved, item.TrashFolderPath, dest)
		return nil, err
	}
	a.logger.Debug("moved animation files", "uuid", uuid, "to", dest, "moved", moved)
	return archived, nil
}

// Purge permanently deletes a trashed animation and its files.
func (a *App) Purge(ctx context.Context, uuid string) error {
	item, err := a.lifecycle.Purge(ctx, uuid)
	if err != nil {
		return err
	}
	a.removeFiles(item)
	return nil
}

// EmptyTrash permanently deletes everything in the trash and returns how many
// animations were removed.
func (a *App) EmptyTrash(ctx context.Context) (int, error) {
	items, err := a.lifecycle.EmptyTrash(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		a.removeFiles(item)
	}
	return len(items), nil
}

// removeFiles deletes a purged item's directory. The database row is already
// gone, so failures are only logged.
func (a *App) removeFiles(item *model.TrashItem) {
	if item.TrashFolderPath == "" {
		return
	}
	if err := os.RemoveAll(item.TrashFolderPath); err != nil {
		a.logger.Warn("could not delete trashed files", "uuid", item.UUID, "path", item.TrashFolderPath, "error", err)
		return
	}
	a.logger.Debug("deleted trashed files", "uuid", item.UUID, "path", item.TrashFolderPath)
}

func findManifestFile(dir string) string {
	if dir == "" {
		return ""
	}
	if m := filepath.Join(dir, filepath.Base(dir)+".json"); fileExists(m) {
		return m
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ExportMetadata writes the user-authored metadata of every animation to path
// as JSON keyed by uuid, and returns how many animations were exported.
func (a *App) ExportMetadata(ctx context.Context, path string) (int, error) {
	all, err := a.db.Animations().AllMetadata(ctx)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := fs.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	a.logger.Info("metadata exported", "path", path, "animations", len(all))
	return len(all), nil
}

// ImportMetadata merges a metadata export back into the database and returns
// how many animations were updated.
func (a *App) ImportMetadata(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	var all map[string]model.Metadata
	if err := json.Unmarshal(data, &all); err != nil {
		return 0, fmt.Errorf("%w: %s is not a metadata export: %v", model.ErrInvalid, path, err)
	}
	n, err := a.db.Animations().ApplyAllMetadata(ctx, all)
	if err != nil {
		return n, err
	}
	a.logger.Info("metadata imported", "path", path, "applied", n)
	return n, nil
}
