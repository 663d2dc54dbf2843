package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// ArchiveRepository holds the first stage of deletion: animations removed from
// the library but restorable.
type ArchiveRepository struct {
	scope
}

// WithTx returns a view of the repository bound to tx.
func (r *ArchiveRepository) WithTx(tx *sqlx.Tx) *ArchiveRepository {
	return &ArchiveRepository{scope{db: r.db, tx: tx}}
}

const archiveColumns = `id, uuid, name, original_folder_id, original_folder_path, rig_type,
	frame_count, duration_seconds, file_size_mb, archive_folder_path, thumbnail_path,
	archived_date, original_created_date`

type archiveRow struct {
	ID                  int64           `db:"id"`
	UUID                string          `db:"uuid"`
	Name                string          `db:"name"`
	OriginalFolderID    sql.NullInt64   `db:"original_folder_id"`
	OriginalFolderPath  sql.NullString  `db:"original_folder_path"`
	RigType             sql.NullString  `db:"rig_type"`
	FrameCount          sql.NullInt64   `db:"frame_count"`
	DurationSeconds     sql.NullFloat64 `db:"duration_seconds"`
	FileSizeMB          sql.NullFloat64 `db:"file_size_mb"`
	ArchiveFolderPath   string          `db:"archive_folder_path"`
	ThumbnailPath       sql.NullString  `db:"thumbnail_path"`
	ArchivedDate        nullTime        `db:"archived_date"`
	OriginalCreatedDate nullTime        `db:"original_created_date"`
}

func (row *archiveRow) toModel() *model.ArchiveItem {
	item := &model.ArchiveItem{
		ID:                 row.ID,
		UUID:               row.UUID,
		Name:               row.Name,
		OriginalFolderPath: row.OriginalFolderPath.String,
		RigType:            row.RigType.String,
		FrameCount:         int(row.FrameCount.Int64),
		DurationSeconds:    row.DurationSeconds.Float64,
		FileSizeMB:         row.FileSizeMB.Float64,
		ArchiveFolderPath:  row.ArchiveFolderPath,
		ThumbnailPath:      row.ThumbnailPath.String,
		ArchivedAt:         row.ArchivedDate.Time,
		OriginalCreatedAt:  row.OriginalCreatedDate.Time,
	}
	if row.OriginalFolderID.Valid {
		id := row.OriginalFolderID.Int64
		item.OriginalFolderID = &id
	}
	return item
}

// Add records an archived animation and returns its row id. A zero ArchivedAt
// is set to now. A uuid already in the archive is a conflict.
func (r *ArchiveRepository) Add(ctx context.Context, item *model.ArchiveItem) (int64, error) {
	if item.UUID == "" || item.Name == "" {
		return 0, fmt.Errorf("%w: archive entry needs uuid and name", model.ErrInvalid)
	}
	if item.ArchiveFolderPath == "" {
		return 0, fmt.Errorf("%w: archive entry needs a folder path", model.ErrInvalid)
	}
	archivedAt := item.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = r.db.now()
	}
	var originalFolder sql.NullInt64
	if item.OriginalFolderID != nil {
		originalFolder = sql.NullInt64{Int64: *item.OriginalFolderID, Valid: true}
	}

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO archive (uuid, name, original_folder_id, original_folder_path, rig_type,
				frame_count, duration_seconds, file_size_mb, archive_folder_path, thumbnail_path,
				archived_date, original_created_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.UUID, item.Name, originalFolder, item.OriginalFolderPath, item.RigType,
			item.FrameCount, item.DurationSeconds, item.FileSizeMB, item.ArchiveFolderPath,
			nullString(item.ThumbnailPath), archivedAt, newNullTime(item.OriginalCreatedAt))
		if err != nil {
			return fmt.Errorf("archiving %s: %w", item.UUID, classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetByUUID returns the archive entry for uuid.
func (r *ArchiveRepository) GetByUUID(ctx context.Context, uuid string) (*model.ArchiveItem, error) {
	var row archiveRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &row, "SELECT "+archiveColumns+" FROM archive WHERE uuid = ?", uuid)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archived animation %s: %w", uuid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive entry %s: %w", uuid, err)
	}
	return row.toModel(), nil
}

// List returns archive entries, most recently archived first.
func (r *ArchiveRepository) List(ctx context.Context) ([]*model.ArchiveItem, error) {
	var rows []archiveRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows,
			"SELECT "+archiveColumns+" FROM archive ORDER BY archived_date DESC, id DESC")
	})
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	items := make([]*model.ArchiveItem, len(rows))
	for i := range rows {
		items[i] = rows[i].toModel()
	}
	return items, nil
}

// Delete removes the archive entry for uuid.
func (r *ArchiveRepository) Delete(ctx context.Context, uuid string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM archive WHERE uuid = ?", uuid)
		if err != nil {
			return fmt.Errorf("removing archive entry %s: %w", uuid, err)
		}
		return requireAffected(res, "archived animation "+uuid)
	})
}

// Count returns the number of archived animations.
func (r *ArchiveRepository) Count(ctx context.Context) (int, error) {
	return r.scalarInt(ctx, "SELECT COUNT(*) FROM archive")
}

// Exists reports whether uuid is in the archive.
func (r *ArchiveRepository) Exists(ctx context.Context, uuid string) (bool, error) {
	n, err := r.scalarInt(ctx, "SELECT COUNT(*) FROM archive WHERE uuid = ?", uuid)
	return n > 0, err
}

// TotalSizeMB returns the combined file size of archived animations.
func (r *ArchiveRepository) TotalSizeMB(ctx context.Context) (float64, error) {
	var total float64
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &total, "SELECT COALESCE(SUM(file_size_mb), 0) FROM archive")
	})
	if err != nil {
		return 0, fmt.Errorf("summing archive size: %w", err)
	}
	return total, nil
}

func (s scope) scalarInt(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := s.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &n, query, args...)
	})
	if err != nil {
		return 0, fmt.Errorf("querying %q: %w", query, err)
	}
	return n, nil
}
