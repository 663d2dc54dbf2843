package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// TrashRepository holds the second stage of deletion: archived animations
// waiting to be purged.
type TrashRepository struct {
	scope
}

// WithTx returns a view of the repository bound to tx.
func (r *TrashRepository) WithTx(tx *sqlx.Tx) *TrashRepository {
	return &TrashRepository{scope{db: r.db, tx: tx}}
}

const trashColumns = `id, uuid, name, trash_folder_path, thumbnail_path, trashed_date, archived_date`

type trashRow struct {
	ID              int64          `db:"id"`
	UUID            string         `db:"uuid"`
	Name            string         `db:"name"`
	TrashFolderPath string         `db:"trash_folder_path"`
	ThumbnailPath   sql.NullString `db:"thumbnail_path"`
	TrashedDate     nullTime       `db:"trashed_date"`
	ArchivedDate    nullTime       `db:"archived_date"`
}

func (row *trashRow) toModel() *model.TrashItem {
	return &model.TrashItem{
		ID:              row.ID,
		UUID:            row.UUID,
		Name:            row.Name,
		TrashFolderPath: row.TrashFolderPath,
		ThumbnailPath:   row.ThumbnailPath.String,
		TrashedAt:       row.TrashedDate.Time,
		ArchivedAt:      row.ArchivedDate.Time,
	}
}

// Add records a trashed animation and returns its row id. A zero TrashedAt is
// set to now.
func (r *TrashRepository) Add(ctx context.Context, item *model.TrashItem) (int64, error) {
	if item.UUID == "" || item.Name == "" {
		return 0, fmt.Errorf("%w: trash entry needs uuid and name", model.ErrInvalid)
	}
	if item.TrashFolderPath == "" {
		return 0, fmt.Errorf("%w: trash entry needs a folder path", model.ErrInvalid)
	}
	trashedAt := item.TrashedAt
	if trashedAt.IsZero() {
		trashedAt = r.db.now()
	}

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trash (uuid, name, trash_folder_path, thumbnail_path, trashed_date, archived_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.UUID, item.Name, item.TrashFolderPath, nullString(item.ThumbnailPath),
			trashedAt, newNullTime(item.ArchivedAt))
		if err != nil {
			return fmt.Errorf("trashing %s: %w", item.UUID, classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetByUUID returns the trash entry for uuid.
func (r *TrashRepository) GetByUUID(ctx context.Context, uuid string) (*model.TrashItem, error) {
	var row trashRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &row, "SELECT "+trashColumns+" FROM trash WHERE uuid = ?", uuid)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trashed animation %s: %w", uuid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading trash entry %s: %w", uuid, err)
	}
	return row.toModel(), nil
}

// List returns trash entries, most recently trashed first.
func (r *TrashRepository) List(ctx context.Context) ([]*model.TrashItem, error) {
	var rows []trashRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows,
			"SELECT "+trashColumns+" FROM trash ORDER BY trashed_date DESC, id DESC")
	})
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	items := make([]*model.TrashItem, len(rows))
	for i := range rows {
		items[i] = rows[i].toModel()
	}
	return items, nil
}

// Delete removes the trash entry for uuid.
func (r *TrashRepository) Delete(ctx context.Context, uuid string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM trash WHERE uuid = ?", uuid)
		if err != nil {
			return fmt.Errorf("removing trash entry %s: %w", uuid, err)
		}
		return requireAffected(res, "trashed animation "+uuid)
	})
}

// Count returns the number of trashed animations.
func (r *TrashRepository) Count(ctx context.Context) (int, error) {
	return r.scalarInt(ctx, "SELECT COUNT(*) FROM trash")
}

// Exists reports whether uuid is in the trash.
func (r *TrashRepository) Exists(ctx context.Context, uuid string) (bool, error) {
	n, err := r.scalarInt(ctx, "SELECT COUNT(*) FROM trash WHERE uuid = ?", uuid)
	return n > 0, err
}
