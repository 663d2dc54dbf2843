package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// AnimationRepository stores active animations.
//
// Every write that leaves a row with is_latest set clears the flag on the
// other members of its version group in the same transaction, so a group
// never has two latest versions. A partial unique index backs this up.
type AnimationRepository struct {
	scope
}

// WithTx returns a view of the repository bound to tx.
func (r *AnimationRepository) WithTx(tx *sqlx.Tx) *AnimationRepository {
	return &AnimationRepository{scope{db: r.db, tx: tx}}
}

const animationColumns = `id, uuid, name, description, folder_id,
	rig_type, armature_name, bone_count,
	frame_start, frame_end, frame_count, duration_seconds, fps,
	blend_file_path, json_file_path, preview_path, thumbnail_path, file_size_mb,
	tags, author, use_custom_thumbnail_gradient, thumbnail_gradient_top, thumbnail_gradient_bottom,
	is_favorite, last_viewed_date, custom_order, is_locked,
	version, version_label, version_group_id, is_latest,
	status, is_pose, is_partial, naming_fields, naming_template,
	created_date, modified_date`

// latestOnly matches rows that are the current version of their group. Rows
// predating versioning may have NULL.
const latestOnly = `(is_latest = 1 OR is_latest IS NULL)`

// tagValues expands the stored tags column into one row per tag. Rows whose
// column is not valid JSON have no tags.
const tagValues = `json_each(CASE WHEN json_valid(animations.tags) THEN animations.tags ELSE '[]' END)`

type animationRow struct {
	ID              int64           `db:"id"`
	UUID            string          `db:"uuid"`
	Name            string          `db:"name"`
	Description     sql.NullString  `db:"description"`
	FolderID        int64           `db:"folder_id"`
	RigType         sql.NullString  `db:"rig_type"`
	ArmatureName    sql.NullString  `db:"armature_name"`
	BoneCount       sql.NullInt64   `db:"bone_count"`
	FrameStart      sql.NullInt64   `db:"frame_start"`
	FrameEnd        sql.NullInt64   `db:"frame_end"`
	FrameCount      sql.NullInt64   `db:"frame_count"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	FPS             sql.NullInt64   `db:"fps"`
	BlendFilePath   sql.NullString  `db:"blend_file_path"`
	JSONFilePath    sql.NullString  `db:"json_file_path"`
	PreviewPath     sql.NullString  `db:"preview_path"`
	ThumbnailPath   sql.NullString  `db:"thumbnail_path"`
	FileSizeMB      sql.NullFloat64 `db:"file_size_mb"`
	Tags            sql.NullString  `db:"tags"`
	Author          sql.NullString  `db:"author"`
	UseGradient     sql.NullBool    `db:"use_custom_thumbnail_gradient"`
	GradientTop     sql.NullString  `db:"thumbnail_gradient_top"`
	GradientBottom  sql.NullString  `db:"thumbnail_gradient_bottom"`
	IsFavorite      sql.NullBool    `db:"is_favorite"`
	LastViewedDate  nullTime        `db:"last_viewed_date"`
	CustomOrder     sql.NullInt64   `db:"custom_order"`
	IsLocked        sql.NullBool    `db:"is_locked"`
	Version         sql.NullInt64   `db:"version"`
	VersionLabel    sql.NullString  `db:"version_label"`
	VersionGroupID  sql.NullString  `db:"version_group_id"`
	IsLatest        sql.NullBool    `db:"is_latest"`
	Status          sql.NullString  `db:"status"`
	IsPose          sql.NullBool    `db:"is_pose"`
	IsPartial       sql.NullBool    `db:"is_partial"`
	NamingFields    sql.NullString  `db:"naming_fields"`
	NamingTemplate  sql.NullString  `db:"naming_template"`
	CreatedDate     nullTime        `db:"created_date"`
	ModifiedDate    nullTime        `db:"modified_date"`
}

// toModel converts a row, filling the documented defaults for columns that
// are NULL in rows written by older versions.
func (row *animationRow) toModel() *model.Animation {
	a := &model.Animation{
		ID:              row.ID,
		UUID:            row.UUID,
		Name:            row.Name,
		Description:     row.Description.String,
		FolderID:        row.FolderID,
		RigType:         row.RigType.String,
		ArmatureName:    row.ArmatureName.String,
		BoneCount:       int(row.BoneCount.Int64),
		FrameStart:      int(row.FrameStart.Int64),
		FrameEnd:        int(row.FrameEnd.Int64),
		FrameCount:      int(row.FrameCount.Int64),
		DurationSeconds: row.DurationSeconds.Float64,
		FPS:             int(row.FPS.Int64),
		BlendFilePath:   row.BlendFilePath.String,
		JSONFilePath:    row.JSONFilePath.String,
		PreviewPath:     row.PreviewPath.String,
		ThumbnailPath:   row.ThumbnailPath.String,
		FileSizeMB:      row.FileSizeMB.Float64,
		Tags:            model.DecodeTags(row.Tags.String),
		Author:          row.Author.String,
		Gradient: model.Gradient{
			Enabled: row.UseGradient.Bool,
			Top:     row.GradientTop.String,
			Bottom:  row.GradientBottom.String,
		},
		IsFavorite:     row.IsFavorite.Bool,
		LastViewedAt:   row.LastViewedDate.ptr(),
		IsLocked:       row.IsLocked.Bool,
		Version:        model.DefaultVersion,
		VersionLabel:   row.VersionLabel.String,
		VersionGroupID: row.VersionGroupID.String,
		IsLatest:       !row.IsLatest.Valid || row.IsLatest.Bool,
		Status:         model.NormalizeStatus(row.Status.String),
		IsPose:         row.IsPose.Bool,
		IsPartial:      row.IsPartial.Bool,
		NamingFields:   model.DecodeNamingFields(row.NamingFields.String),
		NamingTemplate: row.NamingTemplate.String,
		CreatedAt:      row.CreatedDate.Time,
		ModifiedAt:     row.ModifiedDate.Time,
	}
	if row.Version.Valid && row.Version.Int64 > 0 {
		a.Version = int(row.Version.Int64)
	}
	if a.VersionLabel == "" {
		a.VersionLabel = model.VersionLabel(a.Version)
	}
	if a.VersionGroupID == "" {
		a.VersionGroupID = a.UUID
	}
	if row.CustomOrder.Valid {
		order := int(row.CustomOrder.Int64)
		a.CustomOrder = &order
	}
	return a
}

func animationToRow(a *model.Animation) animationRow {
	row := animationRow{
		UUID:            a.UUID,
		Name:            a.Name,
		Description:     sql.NullString{String: a.Description, Valid: true},
		FolderID:        a.FolderID,
		RigType:         sql.NullString{String: a.RigType, Valid: true},
		ArmatureName:    nullString(a.ArmatureName),
		BoneCount:       sql.NullInt64{Int64: int64(a.BoneCount), Valid: true},
		FrameStart:      sql.NullInt64{Int64: int64(a.FrameStart), Valid: true},
		FrameEnd:        sql.NullInt64{Int64: int64(a.FrameEnd), Valid: true},
		FrameCount:      sql.NullInt64{Int64: int64(a.FrameCount), Valid: true},
		DurationSeconds: sql.NullFloat64{Float64: a.DurationSeconds, Valid: true},
		FPS:             sql.NullInt64{Int64: int64(a.FPS), Valid: true},
		BlendFilePath:   nullString(a.BlendFilePath),
		JSONFilePath:    nullString(a.JSONFilePath),
		PreviewPath:     nullString(a.PreviewPath),
		ThumbnailPath:   nullString(a.ThumbnailPath),
		FileSizeMB:      sql.NullFloat64{Float64: a.FileSizeMB, Valid: true},
		Tags:            sql.NullString{String: model.EncodeTags(a.Tags), Valid: true},
		Author:          sql.NullString{String: a.Author, Valid: true},
		UseGradient:     sql.NullBool{Bool: a.Gradient.Enabled, Valid: true},
		GradientTop:     nullString(a.Gradient.Top),
		GradientBottom:  nullString(a.Gradient.Bottom),
		IsFavorite:      sql.NullBool{Bool: a.IsFavorite, Valid: true},
		IsLocked:        sql.NullBool{Bool: a.IsLocked, Valid: true},
		Version:         sql.NullInt64{Int64: int64(a.Version), Valid: true},
		VersionLabel:    sql.NullString{String: a.VersionLabel, Valid: true},
		VersionGroupID:  sql.NullString{String: a.VersionGroupID, Valid: true},
		IsLatest:        sql.NullBool{Bool: a.IsLatest, Valid: true},
		Status:          sql.NullString{String: string(a.Status), Valid: true},
		IsPose:          sql.NullBool{Bool: a.IsPose, Valid: true},
		IsPartial:       sql.NullBool{Bool: a.IsPartial, Valid: true},
		NamingFields:    sql.NullString{String: model.EncodeNamingFields(a.NamingFields), Valid: true},
		NamingTemplate:  sql.NullString{String: a.NamingTemplate, Valid: true},
		CreatedDate:     newNullTime(a.CreatedAt),
		ModifiedDate:    newNullTime(a.ModifiedAt),
	}
	if a.LastViewedAt != nil {
		row.LastViewedDate = newNullTime(*a.LastViewedAt)
	}
	if a.CustomOrder != nil {
		row.CustomOrder = sql.NullInt64{Int64: int64(*a.CustomOrder), Valid: true}
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const insertAnimation = `INSERT INTO animations (
	uuid, name, description, folder_id,
	rig_type, armature_name, bone_count,
	frame_start, frame_end, frame_count, duration_seconds, fps,
	blend_file_path, json_file_path, preview_path, thumbnail_path, file_size_mb,
	tags, author, use_custom_thumbnail_gradient, thumbnail_gradient_top, thumbnail_gradient_bottom,
	is_favorite, last_viewed_date, custom_order, is_locked,
	version, version_label, version_group_id, is_latest,
	status, is_pose, is_partial, naming_fields, naming_template,
	created_date, modified_date
) VALUES (
	:uuid, :name, :description, :folder_id,
	:rig_type, :armature_name, :bone_count,
	:frame_start, :frame_end, :frame_count, :duration_seconds, :fps,
	:blend_file_path, :json_file_path, :preview_path, :thumbnail_path, :file_size_mb,
	:tags, :author, :use_custom_thumbnail_gradient, :thumbnail_gradient_top, :thumbnail_gradient_bottom,
	:is_favorite, :last_viewed_date, :custom_order, :is_locked,
	:version, :version_label, :version_group_id, :is_latest,
	:status, :is_pose, :is_partial, :naming_fields, :naming_template,
	:created_date, :modified_date
)`

// applyAddDefaults fills unset fields of a new animation. An animation without
// a version group starts its own and is that group's latest version. An
// explicit group is taken as given, so archived snapshots may be non-latest
// members of their own group.
func applyAddDefaults(a *model.Animation, now time.Time) error {
	a.UUID = strings.TrimSpace(a.UUID)
	if a.UUID == "" {
		return fmt.Errorf("%w: animation uuid must not be empty", model.ErrInvalid)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: animation name must not be empty", model.ErrInvalid)
	}
	if a.RigType == "" {
		a.RigType = model.DefaultRigType
	}
	if a.Version <= 0 {
		a.Version = model.DefaultVersion
	}
	if a.VersionLabel == "" {
		a.VersionLabel = model.VersionLabel(a.Version)
	}
	if a.VersionGroupID == "" {
		a.VersionGroupID = a.UUID
		a.IsLatest = true
	}
	if a.Status == "" {
		a.Status = model.StatusNone
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalid, a.Status)
	}
	a.Tags = model.NormalizeTags(a.Tags)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.ModifiedAt = now
	return nil
}

// Add inserts a new animation and returns its id. FolderID 0 places it in the
// root folder. Unset version fields default to a fresh single-member group.
// If the new row is latest, its siblings stop being latest.
func (r *AnimationRepository) Add(ctx context.Context, a *model.Animation) (int64, error) {
	in := *a
	if err := applyAddDefaults(&in, r.db.now()); err != nil {
		return 0, err
	}

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		if in.FolderID == 0 {
			rootID, err := (&FolderRepository{scope{db: r.db, tx: tx}}).RootID(ctx)
			if err != nil {
				return err
			}
			in.FolderID = rootID
		} else if _, err := getFolder(ctx, tx, "id = ?", in.FolderID); err != nil {
			return err
		}

		if in.IsLatest {
			if err := clearLatest(ctx, tx, in.VersionGroupID, in.UUID); err != nil {
				return err
			}
		}

		res, err := sqlx.NamedExecContext(ctx, tx, insertAnimation, animationToRow(&in))
		if err != nil {
			return fmt.Errorf("adding animation %s: %w", in.UUID, classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// clearLatest unsets is_latest on every member of group except keepUUID.
func clearLatest(ctx context.Context, tx *sqlx.Tx, group, keepUUID string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE animations SET is_latest = 0 WHERE version_group_id = ? AND uuid != ? AND is_latest = 1",
		group, keepUUID)
	if err != nil {
		return fmt.Errorf("clearing latest flag in group %s: %w", group, err)
	}
	return nil
}

// GetByID returns the animation with the given surrogate id.
func (r *AnimationRepository) GetByID(ctx context.Context, id int64) (*model.Animation, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByUUID returns the animation with the given uuid.
func (r *AnimationRepository) GetByUUID(ctx context.Context, uuid string) (*model.Animation, error) {
	return r.getOne(ctx, "uuid = ?", uuid)
}

// Exists reports whether an animation with the given uuid is active.
func (r *AnimationRepository) Exists(ctx context.Context, uuid string) (bool, error) {
	_, err := r.GetByUUID(ctx, uuid)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *AnimationRepository) getOne(ctx context.Context, where string, args ...any) (*model.Animation, error) {
	var a *model.Animation
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		a, err = getAnimation(ctx, q, where, args...)
		return err
	})
	return a, err
}

func getAnimation(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*model.Animation, error) {
	var row animationRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+animationColumns+" FROM animations WHERE "+where+" LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("animation %v: %w", args, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding animation: %w", err)
	}
	return row.toModel(), nil
}

func (r *AnimationRepository) selectMany(ctx context.Context, query string, args ...any) ([]*model.Animation, error) {
	var rows []animationRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...)
	})
	if err != nil {
		return nil, fmt.Errorf("listing animations: %w", err)
	}
	out := make([]*model.Animation, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// ListOptions narrows List.
type ListOptions struct {
	// FolderID restricts to one folder when non-zero.
	FolderID int64
	// IncludeAllVersions returns superseded versions too.
	IncludeAllVersions bool
}

// List returns animations ordered by name; by default only the latest
// version of each group.
func (r *AnimationRepository) List(ctx context.Context, opts ListOptions) ([]*model.Animation, error) {
	where := []string{"1 = 1"}
	var args []any
	if opts.FolderID != 0 {
		where = append(where, "folder_id = ?")
		args = append(args, opts.FolderID)
	}
	if !opts.IncludeAllVersions {
		where = append(where, latestOnly)
	}
	return r.selectMany(ctx,
		"SELECT "+animationColumns+" FROM animations WHERE "+strings.Join(where, " AND ")+" ORDER BY name COLLATE NOCASE, id",
		args...)
}

// Count returns the number of active animation rows, in one folder when
// folderID is non-zero.
func (r *AnimationRepository) Count(ctx context.Context, folderID int64) (int, error) {
	query := "SELECT COUNT(*) FROM animations"
	var args []any
	if folderID != 0 {
		query += " WHERE folder_id = ?"
		args = append(args, folderID)
	}
	var n int
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &n, query, args...)
	})
	if err != nil {
		return 0, fmt.Errorf("counting animations: %w", err)
	}
	return n, nil
}

// Update applies a patch to the animation with the given uuid.
func (r *AnimationRepository) Update(ctx context.Context, uuid string, patch model.AnimationPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return r.write(ctx, func(tx *sqlx.Tx) error {
		current, err := getAnimation(ctx, tx, "uuid = ?", uuid)
		if err != nil {
			return err
		}
		if patch.Empty() {
			return nil
		}
		if patch.FolderID != nil {
			if _, err := getFolder(ctx, tx, "id = ?", *patch.FolderID); err != nil {
				return err
			}
		}

		group := current.VersionGroupID
		if patch.VersionGroupID != nil {
			group = *patch.VersionGroupID
		}
		latest := current.IsLatest
		if patch.IsLatest != nil {
			latest = *patch.IsLatest
		}
		if latest {
			if err := clearLatest(ctx, tx, group, uuid); err != nil {
				return err
			}
		}

		return r.updateColumns(ctx, tx, uuid, patchAssignments(&patch))
	})
}

type assignment struct {
	column string
	value  any
}

func (r *AnimationRepository) updateColumns(ctx context.Context, tx *sqlx.Tx, uuid string, set []assignment) error {
	set = append(set, assignment{"modified_date", r.db.now()})
	cols := make([]string, len(set))
	args := make([]any, 0, len(set)+1)
	for i, a := range set {
		cols[i] = a.column + " = ?"
		args = append(args, a.value)
	}
	args = append(args, uuid)

	res, err := tx.ExecContext(ctx, "UPDATE animations SET "+strings.Join(cols, ", ")+" WHERE uuid = ?", args...)
	if err != nil {
		return fmt.Errorf("updating animation %s: %w", uuid, classify(err))
	}
	return requireAffected(res, "animation "+uuid)
}

// patchAssignments maps each set field of the patch to its column. Column
// names come only from this table.
func patchAssignments(p *model.AnimationPatch) []assignment {
	var set []assignment
	add := func(col string, v any) { set = append(set, assignment{col, v}) }

	if p.Name != nil {
		add("name", strings.TrimSpace(*p.Name))
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.FolderID != nil {
		add("folder_id", *p.FolderID)
	}
	if p.RigType != nil {
		add("rig_type", *p.RigType)
	}
	if p.ArmatureName != nil {
		add("armature_name", *p.ArmatureName)
	}
	if p.BoneCount != nil {
		add("bone_count", *p.BoneCount)
	}
	if p.FrameStart != nil {
		add("frame_start", *p.FrameStart)
	}
	if p.FrameEnd != nil {
		add("frame_end", *p.FrameEnd)
	}
	if p.FrameCount != nil {
		add("frame_count", *p.FrameCount)
	}
	if p.DurationSeconds != nil {
		add("duration_seconds", *p.DurationSeconds)
	}
	if p.FPS != nil {
		add("fps", *p.FPS)
	}
	if p.BlendFilePath != nil {
		add("blend_file_path", *p.BlendFilePath)
	}
	if p.JSONFilePath != nil {
		add("json_file_path", *p.JSONFilePath)
	}
	if p.PreviewPath != nil {
		add("preview_path", *p.PreviewPath)
	}
	if p.ThumbnailPath != nil {
		add("thumbnail_path", *p.ThumbnailPath)
	}
	if p.FileSizeMB != nil {
		add("file_size_mb", *p.FileSizeMB)
	}
	if p.Tags != nil {
		add("tags", model.EncodeTags(*p.Tags))
	}
	if p.Author != nil {
		add("author", *p.Author)
	}
	if p.Gradient != nil {
		add("use_custom_thumbnail_gradient", p.Gradient.Enabled)
		add("thumbnail_gradient_top", p.Gradient.Top)
		add("thumbnail_gradient_bottom", p.Gradient.Bottom)
	}
	if p.IsFavorite != nil {
		add("is_favorite", *p.IsFavorite)
	}
	if p.CustomOrder != nil {
		add("custom_order", *p.CustomOrder)
	}
	if p.ClearCustomOrder {
		add("custom_order", nil)
	}
	if p.IsLocked != nil {
		add("is_locked", *p.IsLocked)
	}
	if p.Version != nil {
		add("version", *p.Version)
	}
	if p.VersionLabel != nil {
		add("version_label", *p.VersionLabel)
	}
	if p.VersionGroupID != nil {
		add("version_group_id", *p.VersionGroupID)
	}
	if p.IsLatest != nil {
		add("is_latest", *p.IsLatest)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.IsPose != nil {
		add("is_pose", *p.IsPose)
	}
	if p.IsPartial != nil {
		add("is_partial", *p.IsPartial)
	}
	if p.NamingFields != nil {
		add("naming_fields", model.EncodeNamingFields(*p.NamingFields))
	}
	if p.NamingTemplate != nil {
		add("naming_template", *p.NamingTemplate)
	}
	return set
}

// Delete removes an active animation and, by cascade, its review notes.
func (r *AnimationRepository) Delete(ctx context.Context, uuid string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM animations WHERE uuid = ?", uuid)
		if err != nil {
			return fmt.Errorf("deleting animation %s: %w", uuid, classify(err))
		}
		return requireAffected(res, "animation "+uuid)
	})
}

// MoveToFolder places an animation in another folder and adds the folder's
// name to its tags so tag filters can find it by folder.
func (r *AnimationRepository) MoveToFolder(ctx context.Context, uuid string, folderID int64) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		a, err := getAnimation(ctx, tx, "uuid = ?", uuid)
		if err != nil {
			return err
		}
		folder, err := getFolder(ctx, tx, "id = ?", folderID)
		if err != nil {
			return err
		}
		tags := a.Tags
		if !folder.IsRoot() {
			tags = model.MergeTags(tags, []string{folder.Name})
		}
		return r.updateColumns(ctx, tx, uuid, []assignment{
			{"folder_id", folder.ID},
			{"tags", model.EncodeTags(tags)},
		})
	})
}

// Search returns latest versions whose name, description, or tags contain
// text, case-insensitively.
func (r *AnimationRepository) Search(ctx context.Context, text string) ([]*model.Animation, error) {
	pattern := "%" + escapeLike(text) + "%"
	return r.selectMany(ctx,
		"SELECT "+animationColumns+` FROM animations
		 WHERE (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
		        OR EXISTS (SELECT 1 FROM `+tagValues+` WHERE value LIKE ? ESCAPE '\'))
		   AND `+latestOnly+`
		 ORDER BY name COLLATE NOCASE, id`,
		pattern, pattern, pattern)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Sort keys accepted by Filter.
const (
	SortByName       = "name"
	SortByCreated    = "created_date"
	SortByDuration   = "duration_seconds"
	SortByRigType    = "rig_type"
	SortByLastViewed = "last_viewed_date"
	SortByCustom     = "custom_order"
)

var sortColumns = map[string]string{
	SortByName:       "name COLLATE NOCASE",
	SortByCreated:    "created_date",
	SortByDuration:   "duration_seconds",
	SortByRigType:    "rig_type COLLATE NOCASE",
	SortByLastViewed: "last_viewed_date",
	SortByCustom:     "custom_order",
}

// Filter selects animations for the library views.
type Filter struct {
	// FolderID restricts to one folder when non-zero; with IncludeSubfolders
	// the folder's whole subtree is searched.
	FolderID          int64
	IncludeSubfolders bool
	// FolderIDs restricts to any of the listed folders.
	FolderIDs []int64
	RigTypes  []string
	// Tags match if the animation has any of them.
	Tags          []string
	FavoritesOnly bool
	Status        model.Status
	PosesOnly     bool
	// SortBy is one of the SortBy constants; unknown keys sort by name.
	SortBy string
	// SortOrder is "asc" (default) or "desc".
	SortOrder          string
	IncludeAllVersions bool
}

// Filter returns the animations matching f.
func (r *AnimationRepository) Filter(ctx context.Context, f Filter) ([]*model.Animation, error) {
	where := []string{"1 = 1"}
	var args []any

	if f.FolderID != 0 {
		folders := []int64{f.FolderID}
		if f.IncludeSubfolders {
			ids, err := (&FolderRepository{r.scope}).Descendants(ctx, f.FolderID)
			if err != nil {
				return nil, err
			}
			folders = ids
		}
		where = append(where, "folder_id IN (?)")
		args = append(args, folders)
	}
	if len(f.FolderIDs) > 0 {
		where = append(where, "folder_id IN (?)")
		args = append(args, f.FolderIDs)
	}
	if len(f.RigTypes) > 0 {
		where = append(where, "rig_type IN (?)")
		args = append(args, f.RigTypes)
	}
	if len(f.Tags) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM "+tagValues+" WHERE value IN (?))")
		args = append(args, f.Tags)
	}
	if f.FavoritesOnly {
		where = append(where, "is_favorite = 1")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PosesOnly {
		where = append(where, "is_pose = 1")
	}
	if !f.IncludeAllVersions {
		where = append(where, latestOnly)
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns[SortByName]
	}
	dir := "ASC"
	if strings.EqualFold(f.SortOrder, "desc") {
		dir = "DESC"
	}
	bare := strings.Fields(col)[0]
	query := "SELECT " + animationColumns + " FROM animations WHERE " + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY %s IS NULL, %s %s, id %s", bare, col, dir, dir)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding filter: %w", err)
	}
	return r.selectMany(ctx, query, args...)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (r *AnimationRepository) ToggleFavorite(ctx context.Context, uuid string) (bool, error) {
	var fav bool
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		a, err := getAnimation(ctx, tx, "uuid = ?", uuid)
		if err != nil {
			return err
		}
		fav = !a.IsFavorite
		return r.updateColumns(ctx, tx, uuid, []assignment{{"is_favorite", fav}})
	})
	return fav, err
}

// SetFavorite sets the favorite flag.
func (r *AnimationRepository) SetFavorite(ctx context.Context, uuid string, favorite bool) error {
	return r.Update(ctx, uuid, model.AnimationPatch{IsFavorite: &favorite})
}

// Favorites returns favorite latest versions ordered by name.
func (r *AnimationRepository) Favorites(ctx context.Context) ([]*model.Animation, error) {
	return r.Filter(ctx, Filter{FavoritesOnly: true})
}

// TouchLastViewed records that the animation was just viewed.
func (r *AnimationRepository) TouchLastViewed(ctx context.Context, uuid string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE animations SET last_viewed_date = ? WHERE uuid = ?", r.db.now(), uuid)
		if err != nil {
			return fmt.Errorf("updating last viewed of %s: %w", uuid, err)
		}
		return requireAffected(res, "animation "+uuid)
	})
}

// DefaultRecentLimit is the size of the recently-viewed list.
const DefaultRecentLimit = 20

// Recent returns the most recently viewed animations, newest first.
func (r *AnimationRepository) Recent(ctx context.Context, limit int) ([]*model.Animation, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return r.selectMany(ctx,
		"SELECT "+animationColumns+` FROM animations
		 WHERE last_viewed_date IS NOT NULL
		 ORDER BY last_viewed_date DESC, id DESC LIMIT ?`, limit)
}

// AllTags returns every tag in use, sorted.
func (r *AnimationRepository) AllTags(ctx context.Context) ([]string, error) {
	var raw []sql.NullString
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &raw, "SELECT tags FROM animations WHERE tags IS NOT NULL AND tags != ''")
	})
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	seen := map[string]struct{}{}
	for _, s := range raw {
		for _, t := range model.DecodeTags(s.String) {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

// AllRigTypes returns every rig type in use, sorted.
func (r *AnimationRepository) AllRigTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &types,
			"SELECT DISTINCT rig_type FROM animations WHERE rig_type IS NOT NULL AND rig_type != '' ORDER BY rig_type")
	})
	if err != nil {
		return nil, fmt.Errorf("listing rig types: %w", err)
	}
	return types, nil
}

// SetStatus sets the review status.
func (r *AnimationRepository) SetStatus(ctx context.Context, uuid string, status model.Status) error {
	return r.Update(ctx, uuid, model.AnimationPatch{Status: &status})
}

// Status returns the review status.
func (r *AnimationRepository) Status(ctx context.Context, uuid string) (model.Status, error) {
	a, err := r.GetByUUID(ctx, uuid)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}
