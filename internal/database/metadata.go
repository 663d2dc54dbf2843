package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"animlib/internal/model"
)

type metadataRow struct {
	animationRow
	FolderPath sql.NullString `db:"folder_path"`
}

// AllMetadata returns the user-authored metadata of every animation keyed by
// uuid. Every animation is present; its version fields are always set.
func (r *AnimationRepository) AllMetadata(ctx context.Context) (map[string]model.Metadata, error) {
	var rows []metadataRow
	err := r.read(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &rows, `
			SELECT a.*, f.path AS folder_path
			FROM (SELECT `+animationColumns+` FROM animations) a
			LEFT JOIN folders f ON a.folder_id = f.id
			ORDER BY a.id`)
	})
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	out := make(map[string]model.Metadata, len(rows))
	for i := range rows {
		a := rows[i].toModel()
		if a.UUID == "" {
			continue
		}
		m := model.Metadata{
			Tags:           a.Tags,
			IsFavorite:     a.IsFavorite,
			IsLocked:       a.IsLocked,
			FolderPath:     rows[i].FolderPath.String,
			Version:        a.Version,
			VersionLabel:   a.VersionLabel,
			VersionGroupID: a.VersionGroupID,
			IsLatest:       a.IsLatest,
			IsPose:         a.IsPose,
			IsPartial:      a.IsPartial,
			NamingTemplate: a.NamingTemplate,
		}
		if len(m.Tags) == 0 {
			m.Tags = nil
		}
		if a.Gradient.Enabled {
			g := a.Gradient
			m.Gradient = &g
		}
		if a.Status != model.StatusNone {
			m.Status = a.Status
		}
		if len(a.NamingFields) > 0 {
			m.NamingFields = a.NamingFields
		}
		out[a.UUID] = m
	}
	return out, nil
}

// ApplyMetadata merges previously exported metadata into an animation. Tags
// are unioned with the current ones; flags are only ever switched on; a
// folder path that no longer exists is ignored.
func (r *AnimationRepository) ApplyMetadata(ctx context.Context, uuid string, m model.Metadata) error {
	return r.write(ctx, func(tx *sqlx.Tx) error {
		current, err := getAnimation(ctx, tx, "uuid = ?", uuid)
		if err != nil {
			return err
		}

		var p model.AnimationPatch
		if len(m.Tags) > 0 {
			tags := model.MergeTags(current.Tags, m.Tags)
			p.Tags = &tags
		}
		if m.IsFavorite {
			p.IsFavorite = model.Ptr(true)
		}
		if m.IsLocked {
			p.IsLocked = model.Ptr(true)
		}
		if m.Gradient != nil && m.Gradient.Enabled {
			g := *m.Gradient
			p.Gradient = &g
		}
		if m.FolderPath != "" {
			folder, err := getFolder(ctx, tx, "path = ?", model.CleanFolderPath(m.FolderPath))
			switch {
			case err == nil:
				p.FolderID = &folder.ID
			case !errors.Is(err, model.ErrNotFound):
				return err
			}
		}
		if m.Status != "" {
			s := model.NormalizeStatus(string(m.Status))
			p.Status = &s
		}
		if m.IsPose {
			p.IsPose = model.Ptr(true)
		}
		if m.IsPartial {
			p.IsPartial = model.Ptr(true)
		}
		if len(m.NamingFields) > 0 {
			fields := m.NamingFields
			p.NamingFields = &fields
		}
		if m.NamingTemplate != "" {
			p.NamingTemplate = &m.NamingTemplate
		}
		if p.Empty() {
			return nil
		}
		return r.WithTx(tx).Update(ctx, uuid, p)
	})
}

// ApplyAllMetadata applies an exported metadata map in one transaction and
// returns how many animations were updated. Unknown uuids are skipped.
func (r *AnimationRepository) ApplyAllMetadata(ctx context.Context, all map[string]model.Metadata) (int, error) {
	applied := 0
	err := r.write(ctx, func(tx *sqlx.Tx) error {
		repo := r.WithTx(tx)
		for uuid, m := range all {
			err := repo.ApplyMetadata(ctx, uuid, m)
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("applying metadata to %s: %w", uuid, err)
			}
			applied++
		}
		return nil
	})
	return applied, err
}
