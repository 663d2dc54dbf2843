// Package lifecycle moves animations through the two-stage deletion pipeline:
// active, archived, trashed, purged. Every transition runs in one database
// transaction, and an animation is live in at most one stage at a time.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"animlib/internal/animlib"
	"animlib/internal/database"
	"animlib/internal/model"
)

// Stage is where in the pipeline an animation currently lives.
type Stage int

const (
	StageNone Stage = iota
	StageActive
	StageArchived
	StageTrashed
)

func (s Stage) String() string {
	switch s {
	case StageActive:
		return "active"
	case StageArchived:
		return "archived"
	case StageTrashed:
		return "trashed"
	default:
		return "none"
	}
}

// Service orchestrates the animation, archive and trash repositories.
type Service struct {
	db     *database.Database
	logger animlib.Logger
}

// New creates a Service. A nil logger discards output.
func New(db *database.Database, logger animlib.Logger) *Service {
	if logger == nil {
		logger = animlib.NewNopLogger()
	}
	return &Service{db: db, logger: logger}
}

// repos binds all three stage repositories to one transaction.
type repos struct {
	anims   *database.AnimationRepository
	folders *database.FolderRepository
	archive *database.ArchiveRepository
	trash   *database.TrashRepository
}

func (s *Service) inTx(ctx context.Context, fn func(r repos) error) error {
	return s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return fn(repos{
			anims:   s.db.Animations().WithTx(tx),
			folders: s.db.Folders().WithTx(tx),
			archive: s.db.Archive().WithTx(tx),
			trash:   s.db.Trash().WithTx(tx),
		})
	})
}

// absent fails with ErrConflict when uuid is already present in the stage
// checked by exists.
func absent(ctx context.Context, uuid string, stage Stage, exists func(context.Context, string) (bool, error)) error {
	ok, err := exists(ctx, uuid)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: animation %s is already %s", model.ErrConflict, uuid, stage)
	}
	return nil
}

// Archive moves an active animation into the archive. archivePath is where
// its files now live on disk.
func (s *Service) Archive(ctx context.Context, uuid, archivePath string) (*model.ArchiveItem, error) {
	var item *model.ArchiveItem
	err := s.inTx(ctx, func(r repos) error {
		a, err := r.anims.GetByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageArchived, r.archive.Exists); err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageTrashed, r.trash.Exists); err != nil {
			return err
		}

		folder, err := r.folders.GetByID(ctx, a.FolderID)
		if err != nil {
			return err
		}
		folderID := folder.ID
		entry := &model.ArchiveItem{
			UUID:               a.UUID,
			Name:               a.Name,
			OriginalFolderID:   &folderID,
			OriginalFolderPath: folder.Path,
			RigType:            a.RigType,
			FrameCount:         a.FrameCount,
			DurationSeconds:    a.DurationSeconds,
			FileSizeMB:         a.FileSizeMB,
			ArchiveFolderPath:  archivePath,
			ThumbnailPath:      a.ThumbnailPath,
			OriginalCreatedAt:  a.CreatedAt,
		}
		if _, err := r.archive.Add(ctx, entry); err != nil {
			return err
		}
		if err := r.anims.Delete(ctx, uuid); err != nil {
			return err
		}
		item, err = r.archive.GetByUUID(ctx, uuid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", uuid, err)
	}
	s.logger.Info("animation archived", "uuid", uuid, "path", archivePath)
	return item, nil
}

// RestoreFromArchive makes an archived animation active again. When a is nil
// the animation is rebuilt from what the archive entry remembers; otherwise a
// (typically re-read from the restored manifest) is inserted under uuid. The
// original folder is reused if it still exists, else recreated by path.
func (s *Service) RestoreFromArchive(ctx context.Context, uuid string, a *model.Animation) (*model.Animation, error) {
	var restored *model.Animation
	err := s.inTx(ctx, func(r repos) error {
		item, err := r.archive.GetByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageActive, r.anims.Exists); err != nil {
			return err
		}

		var in model.Animation
		if a != nil {
			in = *a
		} else {
			in = model.Animation{
				Name:            item.Name,
				RigType:         item.RigType,
				FrameCount:      item.FrameCount,
				DurationSeconds: item.DurationSeconds,
				FileSizeMB:      item.FileSizeMB,
				ThumbnailPath:   item.ThumbnailPath,
				CreatedAt:       item.OriginalCreatedAt,
			}
		}
		in.UUID = uuid
		if in.FolderID == 0 {
			id, err := originalFolder(ctx, r.folders, item)
			if err != nil {
				return err
			}
			in.FolderID = id
		}

		if _, err := r.anims.Add(ctx, &in); err != nil {
			return err
		}
		if err := r.archive.Delete(ctx, uuid); err != nil {
			return err
		}
		restored, err = r.anims.GetByUUID(ctx, uuid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("restoring %s from archive: %w", uuid, err)
	}
	s.logger.Info("animation restored from archive", "uuid", uuid)
	return restored, nil
}

func originalFolder(ctx context.Context, folders *database.FolderRepository, item *model.ArchiveItem) (int64, error) {
	if item.OriginalFolderID != nil {
		f, err := folders.GetByID(ctx, *item.OriginalFolderID)
		if err == nil && f.Path == item.OriginalFolderPath {
			return f.ID, nil
		}
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return 0, err
		}
	}
	return folders.EnsureExists(ctx, item.OriginalFolderPath, "")
}

// Trash moves an archived animation to the trash. trashPath is where its
// files now live on disk.
func (s *Service) Trash(ctx context.Context, uuid, trashPath string) (*model.TrashItem, error) {
	var item *model.TrashItem
	err := s.inTx(ctx, func(r repos) error {
		archived, err := r.archive.GetByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageTrashed, r.trash.Exists); err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageActive, r.anims.Exists); err != nil {
			return err
		}

		if _, err := r.trash.Add(ctx, &model.TrashItem{
			UUID:            uuid,
			Name:            archived.Name,
			TrashFolderPath: trashPath,
			ThumbnailPath:   archived.ThumbnailPath,
			ArchivedAt:      archived.ArchivedAt,
		}); err != nil {
			return err
		}
		if err := r.archive.Delete(ctx, uuid); err != nil {
			return err
		}
		item, err = r.trash.GetByUUID(ctx, uuid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("trashing %s: %w", uuid, err)
	}
	s.logger.Info("animation trashed", "uuid", uuid, "path", trashPath)
	return item, nil
}

// RestoreFromTrash moves a trashed animation back into the archive, keeping
// its original archive time.
func (s *Service) RestoreFromTrash(ctx context.Context, uuid, archivePath string) (*model.ArchiveItem, error) {
	var item *model.ArchiveItem
	err := s.inTx(ctx, func(r repos) error {
		trashed, err := r.trash.GetByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageArchived, r.archive.Exists); err != nil {
			return err
		}
		if err := absent(ctx, uuid, StageActive, r.anims.Exists); err != nil {
			return err
		}

		if _, err := r.archive.Add(ctx, &model.ArchiveItem{
			UUID:              uuid,
			Name:              trashed.Name,
			ArchiveFolderPath: archivePath,
			ThumbnailPath:     trashed.ThumbnailPath,
			ArchivedAt:        trashed.ArchivedAt,
		}); err != nil {
			return err
		}
		if err := r.trash.Delete(ctx, uuid); err != nil {
			return err
		}
		item, err = r.archive.GetByUUID(ctx, uuid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("restoring %s from trash: %w", uuid, err)
	}
	s.logger.Info("animation restored from trash", "uuid", uuid)
	return item, nil
}

// Purge permanently forgets a trashed animation and returns its last record
// so the caller can remove the files at TrashFolderPath.
func (s *Service) Purge(ctx context.Context, uuid string) (*model.TrashItem, error) {
	var item *model.TrashItem
	err := s.inTx(ctx, func(r repos) error {
		var err error
		item, err = r.trash.GetByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		return r.trash.Delete(ctx, uuid)
	})
	if err != nil {
		return nil, fmt.Errorf("purging %s: %w", uuid, err)
	}
	s.logger.Info("animation purged", "uuid", uuid)
	return item, nil
}

// EmptyTrash purges everything in the trash and returns the removed records.
func (s *Service) EmptyTrash(ctx context.Context) ([]*model.TrashItem, error) {
	var items []*model.TrashItem
	err := s.inTx(ctx, func(r repos) error {
		var err error
		items, err = r.trash.List(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := r.trash.Delete(ctx, item.UUID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("emptying trash: %w", err)
	}
	s.logger.Info("trash emptied", "count", len(items))
	return items, nil
}

// Stage reports which stage holds uuid, StageNone if none does.
func (s *Service) Stage(ctx context.Context, uuid string) (Stage, error) {
	checks := []struct {
		stage  Stage
		exists func(context.Context, string) (bool, error)
	}{
		{StageActive, s.db.Animations().Exists},
		{StageArchived, s.db.Archive().Exists},
		{StageTrashed, s.db.Trash().Exists},
	}
	for _, c := range checks {
		ok, err := c.exists(ctx, uuid)
		if err != nil {
			return StageNone, err
		}
		if ok {
			return c.stage, nil
		}
	}
	return StageNone, nil
}
