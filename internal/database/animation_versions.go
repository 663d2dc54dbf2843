package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// VersionFiles carries what changes between versions of an animation. Paths
// are always taken from here; zero-valued frame and size fields inherit the
// source version's values.
type VersionFiles struct {
	BlendFilePath   string
	JSONFilePath    string
	PreviewPath     string
	ThumbnailPath   string
	FrameStart      int
	FrameEnd        int
	FrameCount      int
	DurationSeconds float64
	FPS             int
	FileSizeMB      float64
}

// VersionHistory returns every version in a group, newest version first.
func (r *AnimationRepository) VersionHistory(ctx context.Context, groupID string) ([]*model.Animation, error) {
	return r.selectMany(ctx,
		"SELECT "+animationColumns+" FROM animations WHERE version_group_id = ? ORDER BY version DESC, id DESC",
		groupID)
}

// VersionCount returns the number of versions in a group.
func (r *AnimationRepository) VersionCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM animations WHERE version_group_id = ?", groupID)
	})
	if err != nil {
		return 0, fmt.Errorf("counting versions of %s: %w", groupID, err)
	}
	return n, nil
}

// MaxVersion returns the highest version number in a group, or 0 for an
// unknown group.
func (r *AnimationRepository) MaxVersion(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		n, err = maxVersion(ctx, q, groupID)
		return err
	})
	return n, err
}

func maxVersion(ctx context.Context, q sqlx.QueryerContext, groupID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COALESCE(MAX(version), 0) FROM animations WHERE version_group_id = ?", groupID)
	if err != nil {
		return 0, fmt.Errorf("reading max version of %s: %w", groupID, err)
	}
	return n, nil
}

// LatestVersion returns the group member flagged latest.
func (r *AnimationRepository) LatestVersion(ctx context.Context, groupID string) (*model.Animation, error) {
	return r.getOne(ctx, "version_group_id = ? AND is_latest = 1", groupID)
}

// CreateNewVersion inserts newUUID as the next version of sourceUUID's group
// and makes it the latest. Descriptive fields and user metadata are copied
// from the source. Review status starts over.
func (r *AnimationRepository) CreateNewVersion(ctx context.Context, sourceUUID, newUUID string, files VersionFiles) (*model.Animation, error) {
	var created *model.Animation
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		source, err := getAnimation(ctx, tx, "uuid = ?", sourceUUID)
		if err != nil {
			return err
		}
		next, err := maxVersion(ctx, tx, source.VersionGroupID)
		if err != nil {
			return err
		}
		next++

		v := *source
		v.ID = 0
		v.UUID = newUUID
		v.Version = next
		v.VersionLabel = model.VersionLabel(next)
		v.IsLatest = true
		v.Status = model.StatusNone
		v.LastViewedAt = nil
		v.CreatedAt = r.db.now()
		v.BlendFilePath = files.BlendFilePath
		v.JSONFilePath = files.JSONFilePath
		v.PreviewPath = files.PreviewPath
		v.ThumbnailPath = files.ThumbnailPath
		if files.FrameStart != 0 {
			v.FrameStart = files.FrameStart
		}
		if files.FrameEnd != 0 {
			v.FrameEnd = files.FrameEnd
		}
		if files.FrameCount != 0 {
			v.FrameCount = files.FrameCount
		}
		if files.DurationSeconds != 0 {
			v.DurationSeconds = files.DurationSeconds
		}
		if files.FPS != 0 {
			v.FPS = files.FPS
		}
		if files.FileSizeMB != 0 {
			v.FileSizeMB = files.FileSizeMB
		}

		id, err := r.WithTx(tx).Add(ctx, &v)
		if err != nil {
			return err
		}
		created, err = getAnimation(ctx, tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating version of %s: %w", sourceUUID, err)
	}
	return created, nil
}

// SetAsLatest makes uuid the latest version of its group.
func (r *AnimationRepository) SetAsLatest(ctx context.Context, uuid string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		a, err := getAnimation(ctx, tx, "uuid = ?", uuid)
		if err != nil {
			return err
		}
		if err := clearLatest(ctx, tx, a.VersionGroupID, uuid); err != nil {
			return err
		}
		return r.updateColumns(ctx, tx, uuid, []assignment{{"is_latest", true}})
	})
}

// InitializeVersionGroup gives an animation without version tracking a group
// of its own. It reports whether anything changed.
func (r *AnimationRepository) InitializeVersionGroup(ctx context.Context, uuid string) (bool, error) {
	var changed bool
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE animations
			 SET version_group_id = uuid, version = 1, version_label = ?, is_latest = 1, modified_date = ?
			 WHERE uuid = ? AND (version_group_id IS NULL OR version_group_id = '')`,
			model.VersionLabel(model.DefaultVersion), r.db.now(), uuid)
		if err != nil {
			return fmt.Errorf("initializing version group of %s: %w", uuid, classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		return nil
	})
	return changed, err
}
