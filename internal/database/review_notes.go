package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

// ReviewNoteRepository stores frame-anchored review notes. Notes are removed
// with their animation by the foreign key cascade.
type ReviewNoteRepository struct {
	scope
}

// WithTx returns a view of the repository bound to tx.
func (r *ReviewNoteRepository) WithTx(tx *sqlx.Tx) *ReviewNoteRepository {
	return &ReviewNoteRepository{scope{db: r.db, tx: tx}}
}

const reviewNoteColumns = `id, animation_uuid, frame, note, author, created_date, resolved`

type reviewNoteRow struct {
	ID            int64          `db:"id"`
	AnimationUUID string         `db:"animation_uuid"`
	Frame         int            `db:"frame"`
	Note          string         `db:"note"`
	Author        sql.NullString `db:"author"`
	CreatedDate   nullTime       `db:"created_date"`
	Resolved      sql.NullBool   `db:"resolved"`
}

func (row *reviewNoteRow) toModel() *model.ReviewNote {
	return &model.ReviewNote{
		ID:            row.ID,
		AnimationUUID: row.AnimationUUID,
		Frame:         row.Frame,
		Note:          row.Note,
		Author:        row.Author.String,
		CreatedAt:     row.CreatedDate.Time,
		Resolved:      row.Resolved.Bool,
	}
}

// ListForAnimation returns the notes of an animation ordered by frame.
func (r *ReviewNoteRepository) ListForAnimation(ctx context.Context, animationUUID string) ([]*model.ReviewNote, error) {
	var rows []reviewNoteRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows,
			"SELECT "+reviewNoteColumns+" FROM review_notes WHERE animation_uuid = ? ORDER BY frame, id",
			animationUUID)
	})
	if err != nil {
		return nil, fmt.Errorf("listing notes of %s: %w", animationUUID, err)
	}
	notes := make([]*model.ReviewNote, len(rows))
	for i := range rows {
		notes[i] = rows[i].toModel()
	}
	return notes, nil
}

// Get returns a note by id.
func (r *ReviewNoteRepository) Get(ctx context.Context, id int64) (*model.ReviewNote, error) {
	var note *model.ReviewNote
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		var err error
		note, err = getReviewNote(ctx, q, id)
		return err
	})
	return note, err
}

func getReviewNote(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.ReviewNote, error) {
	var row reviewNoteRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+reviewNoteColumns+" FROM review_notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review note %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading review note %d: %w", id, err)
	}
	return row.toModel(), nil
}

// Add attaches a note to a frame of an animation and returns its id. The
// animation must exist.
func (r *ReviewNoteRepository) Add(ctx context.Context, animationUUID string, frame int, note, author string) (int64, error) {
	if strings.TrimSpace(note) == "" {
		return 0, fmt.Errorf("%w: review note must not be empty", model.ErrInvalid)
	}
	if frame < 0 {
		return 0, fmt.Errorf("%w: frame must not be negative", model.ErrInvalid)
	}

	var id int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		if _, err := getAnimation(ctx, tx, "uuid = ?", animationUUID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO review_notes (animation_uuid, frame, note, author, created_date, resolved) VALUES (?, ?, ?, ?, ?, 0)",
			animationUUID, frame, note, author, r.db.now())
		if err != nil {
			return fmt.Errorf("adding review note: %w", classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// UpdateText replaces the text of a note.
func (r *ReviewNoteRepository) UpdateText(ctx context.Context, id int64, note string) error {
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("%w: review note must not be empty", model.ErrInvalid)
	}
	return r.exec(ctx, id, "UPDATE review_notes SET note = ? WHERE id = ?", note, id)
}

// UpdateFrame moves a note to another frame.
func (r *ReviewNoteRepository) UpdateFrame(ctx context.Context, id int64, frame int) error {
	if frame < 0 {
		return fmt.Errorf("%w: frame must not be negative", model.ErrInvalid)
	}
	return r.exec(ctx, id, "UPDATE review_notes SET frame = ? WHERE id = ?", frame, id)
}

// Delete removes a note.
func (r *ReviewNoteRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, id, "DELETE FROM review_notes WHERE id = ?", id)
}

// SetResolved marks a note resolved or open.
func (r *ReviewNoteRepository) SetResolved(ctx context.Context, id int64, resolved bool) error {
	return r.exec(ctx, id, "UPDATE review_notes SET resolved = ? WHERE id = ?", resolved, id)
}

// ToggleResolved flips the resolved flag and returns the new value.
func (r *ReviewNoteRepository) ToggleResolved(ctx context.Context, id int64) (bool, error) {
	var resolved bool
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		note, err := getReviewNote(ctx, tx, id)
		if err != nil {
			return err
		}
		resolved = !note.Resolved
		_, err = tx.ExecContext(ctx, "UPDATE review_notes SET resolved = ? WHERE id = ?", resolved, id)
		return err
	})
	return resolved, err
}

func (r *ReviewNoteRepository) exec(ctx context.Context, id int64, query string, args ...any) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating review note %d: %w", id, err)
		}
		return requireAffected(res, fmt.Sprintf("review note %d", id))
	})
}

// Count returns the number of notes on an animation.
func (r *ReviewNoteRepository) Count(ctx context.Context, animationUUID string) (int, error) {
	return r.scalarInt(ctx, "SELECT COUNT(*) FROM review_notes WHERE animation_uuid = ?", animationUUID)
}

// UnresolvedCount returns the number of open notes on an animation.
func (r *ReviewNoteRepository) UnresolvedCount(ctx context.Context, animationUUID string) (int, error) {
	return r.scalarInt(ctx,
		"SELECT COUNT(*) FROM review_notes WHERE animation_uuid = ? AND (resolved = 0 OR resolved IS NULL)",
		animationUUID)
}

// UnresolvedCounts returns the open note count of every animation that has
// any, keyed by uuid.
func (r *ReviewNoteRepository) UnresolvedCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		UUID  string `db:"animation_uuid"`
		Count int    `db:"n"`
	}
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows, `
			SELECT animation_uuid, COUNT(*) AS n FROM review_notes
			WHERE resolved = 0 OR resolved IS NULL
			GROUP BY animation_uuid`)
	})
	if err != nil {
		return nil, fmt.Errorf("counting open review notes: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.UUID] = row.Count
	}
	return counts, nil
}

// DeleteForAnimation removes every note of an animation and returns how many
// there were.
func (r *ReviewNoteRepository) DeleteForAnimation(ctx context.Context, animationUUID string) (int, error) {
	var n int64
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM review_notes WHERE animation_uuid = ?", animationUUID)
		if err != nil {
			return fmt.Errorf("deleting notes of %s: %w", animationUUID, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
