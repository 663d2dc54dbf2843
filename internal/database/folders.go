package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// FolderRepository manages the folder hierarchy. Every folder stores its
// materialized path; moves and renames rewrite the paths of the whole subtree.
type FolderRepository struct {
	scope
}

// WithTx returns a view of the repository bound to tx.
func (r *FolderRepository) WithTx(tx *sqlx.Tx) *FolderRepository {
	return &FolderRepository{scope{db: r.db, tx: tx}}
}

const folderColumns = `id, name, parent_id, path, description, created_date, modified_date`

type folderRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	ParentID     sql.NullInt64  `db:"parent_id"`
	Path         sql.NullString `db:"path"`
	Description  sql.NullString `db:"description"`
	CreatedDate  nullTime       `db:"created_date"`
	ModifiedDate nullTime       `db:"modified_date"`
}

func (row *folderRow) toModel() *model.Folder {
	f := &model.Folder{
		ID:          row.ID,
		Name:        row.Name,
		Path:        row.Path.String,
		Description: row.Description.String,
		CreatedAt:   row.CreatedDate.Time,
		ModifiedAt:  row.ModifiedDate.Time,
	}
	if row.ParentID.Valid {
		parent := row.ParentID.Int64
		f.ParentID = &parent
	}
	return f
}

// RootID returns the id of the root folder, creating it if the table has none.
func (r *FolderRepository) RootID(ctx context.Context) (int64, error) {
	var id int64
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		id, err = rootID(ctx, q)
		return err
	})
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, err
	}

	err = r.write(ctx, func(tx *sqlx.Tx) error {
		var err error
		if id, err = rootID(ctx, tx); !errors.Is(err, model.ErrNotFound) {
			return err
		}
		now := r.db.now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO folders (name, parent_id, path, description, created_date, modified_date)
			 VALUES (?, NULL, '', '', ?, ?)`, model.RootFolderName, now, now)
		if err != nil {
			return fmt.Errorf("creating root folder: %w", classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func rootID(ctx context.Context, q sqlx.QueryerContext) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, "SELECT id FROM folders WHERE parent_id IS NULL ORDER BY id LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("root folder: %w", model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("finding root folder: %w", err)
	}
	return id, nil
}

// Create adds a folder named name under parentID (0 means the root) and
// returns its id. A sibling with the same name is a conflict.
func (r *FolderRepository) Create(ctx context.Context, name string, parentID int64, description string) (int64, error) {
	name = strings.TrimSpace(name)
	if err := validateFolderName(name); err != nil {
		return 0, err
	}

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		if parentID == 0 {
			var err error
			if parentID, err = r.WithTx(tx).RootID(ctx); err != nil {
				return err
			}
		}
		parent, err := getFolder(ctx, tx, "id = ?", parentID)
		if err != nil {
			return err
		}
		id, err = r.insert(ctx, tx, name, parent, description)
		return err
	})
	return id, err
}

func (r *FolderRepository) insert(ctx context.Context, tx *sqlx.Tx, name string, parent *model.Folder, description string) (int64, error) {
	now := r.db.now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO folders (name, parent_id, path, description, created_date, modified_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, parent.ID, model.JoinFolderPath(parent.Path, name), description, now, now)
	if err != nil {
		return 0, fmt.Errorf("creating folder %q: %w", name, classify(err))
	}
	return res.LastInsertId()
}

func validateFolderName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: folder name must not be empty", model.ErrInvalid)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: folder name %q must not contain '/'", model.ErrInvalid, name)
	}
	return nil
}

// GetByID returns the folder with the given id.
func (r *FolderRepository) GetByID(ctx context.Context, id int64) (*model.Folder, error) {
	var f *model.Folder
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		f, err = getFolder(ctx, q, "id = ?", id)
		return err
	})
	return f, err
}

// GetByPath returns the folder at path. The empty path is the root.
func (r *FolderRepository) GetByPath(ctx context.Context, path string) (*model.Folder, error) {
	path = model.CleanFolderPath(path)
	var f *model.Folder
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		if path == "" {
			f, err = getFolder(ctx, q, "parent_id IS NULL")
		} else {
			f, err = getFolder(ctx, q, "path = ?", path)
		}
		return err
	})
	return f, err
}

func getFolder(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*model.Folder, error) {
	var row folderRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+folderColumns+" FROM folders WHERE "+where+" ORDER BY id LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %v: %w", args, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return row.toModel(), nil
}

// List returns every folder, root first, then ordered by path.
func (r *FolderRepository) List(ctx context.Context) ([]*model.Folder, error) {
	var folders []*model.Folder
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		folders, err = listFolders(ctx, q)
		return err
	})
	return folders, err
}

// ListWithPaths returns every folder except the root, ordered by path.
func (r *FolderRepository) ListWithPaths(ctx context.Context) ([]*model.Folder, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Folder, 0, len(all))
	for _, f := range all {
		if !f.IsRoot() {
			out = append(out, f)
		}
	}
	return out, nil
}

// Children returns the direct children of a folder ordered by name.
func (r *FolderRepository) Children(ctx context.Context, parentID int64) ([]*model.Folder, error) {
	var rows []folderRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows,
			"SELECT "+folderColumns+" FROM folders WHERE parent_id = ? ORDER BY name", parentID)
	})
	if err != nil {
		return nil, fmt.Errorf("listing children of folder %d: %w", parentID, err)
	}
	return foldersFromRows(rows), nil
}

func listFolders(ctx context.Context, q sqlx.QueryerContext) ([]*model.Folder, error) {
	var rows []folderRow
	err := sqlx.SelectContext(ctx, q, &rows,
		"SELECT "+folderColumns+" FROM folders ORDER BY parent_id IS NOT NULL, path")
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return foldersFromRows(rows), nil
}

func foldersFromRows(rows []folderRow) []*model.Folder {
	out := make([]*model.Folder, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}

func folderTree(ctx context.Context, q sqlx.QueryerContext) (*model.FolderTree, error) {
	folders, err := listFolders(ctx, q)
	if err != nil {
		return nil, err
	}
	snapshot := make([]model.Folder, len(folders))
	for i, f := range folders {
		snapshot[i] = *f
	}
	return model.NewFolderTree(snapshot), nil
}

// Descendants returns id followed by the ids of all folders below it.
func (r *FolderRepository) Descendants(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		tree, err := folderTree(ctx, q)
		if err != nil {
			return err
		}
		if !tree.Contains(id) {
			return fmt.Errorf("folder %d: %w", id, model.ErrNotFound)
		}
		ids = tree.Descendants(id)
		return nil
	})
	return ids, err
}

// Delete removes a folder. Subfolders, their animations, and those
// animations' review notes go with it. The root cannot be deleted.
func (r *FolderRepository) Delete(ctx context.Context, id int64) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		f, err := getFolder(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if f.IsRoot() {
			return fmt.Errorf("%w: the root folder cannot be deleted", model.ErrInvalid)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting folder %d: %w", id, classify(err))
		}
		return nil
	})
}

// Move re-parents a folder and rewrites the paths of its whole subtree.
// Moving the root, or moving a folder into itself or one of its descendants,
// is invalid. A name clash at the destination is a conflict.
func (r *FolderRepository) Move(ctx context.Context, id, newParentID int64) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		f, err := getFolder(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if f.IsRoot() {
			return fmt.Errorf("%w: the root folder cannot be moved", model.ErrInvalid)
		}
		parent, err := getFolder(ctx, tx, "id = ?", newParentID)
		if err != nil {
			return err
		}
		tree, err := folderTree(ctx, tx)
		if err != nil {
			return err
		}
		if tree.IsDescendant(id, newParentID) {
			return fmt.Errorf("%w: cannot move folder %q into its own subtree", model.ErrInvalid, f.Path)
		}

		newPath := model.JoinFolderPath(parent.Path, f.Name)
		if _, err := tx.ExecContext(ctx,
			"UPDATE folders SET parent_id = ?, path = ?, modified_date = ? WHERE id = ?",
			parent.ID, newPath, r.db.now(), id); err != nil {
			return fmt.Errorf("moving folder %q: %w", f.Path, classify(err))
		}
		return r.rewriteSubtree(ctx, tx, f.Path, newPath)
	})
}

// Rename changes a folder's name and rewrites the paths of its subtree.
func (r *FolderRepository) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if err := validateFolderName(name); err != nil {
		return err
	}
	return r.write(ctx, func(tx *sqlx.Tx) error {
		f, err := getFolder(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if f.IsRoot() {
			return fmt.Errorf("%w: the root folder cannot be renamed", model.ErrInvalid)
		}
		parent, err := getFolder(ctx, tx, "id = ?", *f.ParentID)
		if err != nil {
			return err
		}

		newPath := model.JoinFolderPath(parent.Path, name)
		if _, err := tx.ExecContext(ctx,
			"UPDATE folders SET name = ?, path = ?, modified_date = ? WHERE id = ?",
			name, newPath, r.db.now(), id); err != nil {
			return fmt.Errorf("renaming folder %q: %w", f.Path, classify(err))
		}
		return r.rewriteSubtree(ctx, tx, f.Path, newPath)
	})
}

// rewriteSubtree replaces the oldPath prefix of every strict descendant with
// newPath. substr is 1-based and counts characters, hence RuneCount.
func (r *FolderRepository) rewriteSubtree(ctx context.Context, tx *sqlx.Tx, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	prefix := oldPath + "/"
	n := utf8.RuneCountInString(prefix)
	_, err := tx.ExecContext(ctx,
		`UPDATE folders SET path = ? || substr(path, ?), modified_date = ?
		 WHERE substr(path, 1, ?) = ?`,
		newPath+"/", n+1, r.db.now(), n, prefix)
	if err != nil {
		return fmt.Errorf("rewriting paths under %q: %w", oldPath, classify(err))
	}
	return nil
}

// EnsureExists returns the id of the folder at path, creating any missing
// folders along the way. When description is non-empty it is applied to the
// leaf folder. The empty path is the root.
func (r *FolderRepository) EnsureExists(ctx context.Context, path, description string) (int64, error) {
	segments := model.SplitFolderPath(path)

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		rootID, err := r.WithTx(tx).RootID(ctx)
		if err != nil {
			return err
		}
		current, err := getFolder(ctx, tx, "id = ?", rootID)
		if err != nil {
			return err
		}

		for i, name := range segments {
			leaf := i == len(segments)-1
			childPath := model.JoinFolderPath(current.Path, name)

			child, err := getFolder(ctx, tx, "path = ?", childPath)
			if errors.Is(err, model.ErrNotFound) {
				desc := ""
				if leaf {
					desc = description
				}
				childID, err := r.insert(ctx, tx, name, current, desc)
				if err != nil {
					return err
				}
				child = &model.Folder{ID: childID, Name: name, ParentID: &current.ID, Path: childPath, Description: desc}
			} else if err != nil {
				return err
			} else if leaf && description != "" && child.Description != description {
				if err := updateDescription(ctx, tx, child.ID, description, r.db.now()); err != nil {
					return err
				}
			}
			current = child
		}
		id = current.ID
		return nil
	})
	return id, err
}

// UpdateDescription sets a folder's description.
func (r *FolderRepository) UpdateDescription(ctx context.Context, id int64, description string) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		return updateDescription(ctx, tx, id, description, r.db.now())
	})
}

func updateDescription(ctx context.Context, tx *sqlx.Tx, id int64, description string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE folders SET description = ?, modified_date = ? WHERE id = ?", description, now, id)
	if err != nil {
		return fmt.Errorf("updating folder %d description: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("folder %d", id))
}

// requireAffected turns an update or delete that matched nothing into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
