// Package scanner mirrors the manifest files of an animation library into the
// database.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"animlib/internal/animlib"
	"animlib/internal/database"
	"animlib/internal/fs"
	"animlib/internal/model"
)

// ScanResult counts what a scan did. Every candidate directory counts toward
// TotalFound, including those without a manifest.
type ScanResult struct {
	TotalFound    int
	NewlyImported int
	Upgraded      int
	Reconciled    int
	Failed        int
}

// Outcome is what importing one manifest did to the database.
type Outcome int

const (
	// Unchanged means the animation was already present and in sync.
	Unchanged Outcome = iota
	// Imported means a new animation row was inserted.
	Imported
	// Reconciled means an existing row was brought in line with its manifest.
	Reconciled
)

func (o Outcome) String() string {
	switch o {
	case Imported:
		return "imported"
	case Reconciled:
		return "reconciled"
	default:
		return "unchanged"
	}
}

// Options configure a Scanner. Zero values fall back to real implementations.
type Options struct {
	IDs        animlib.IDGenerator
	Logger     animlib.Logger
	AppVersion string
	Ignore     []string
}

// Scanner reconciles library manifests with the database.
type Scanner struct {
	db         *database.Database
	ids        animlib.IDGenerator
	logger     animlib.Logger
	appVersion string
	ignore     []string
}

// New creates a scanner writing to db.
func New(db *database.Database, opts Options) *Scanner {
	if opts.IDs == nil {
		opts.IDs = animlib.UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = animlib.NewNopLogger()
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "1.0.0"
	}
	return &Scanner{
		db:         db,
		ids:        opts.IDs,
		logger:     opts.Logger,
		appVersion: opts.AppVersion,
		ignore:     opts.Ignore,
	}
}

// Scan walks the hot and cold trees under root and imports every manifest.
// A missing root yields an empty result. Broken manifests are logged and
// counted in Failed; they never abort the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (ScanResult, error) {
	var res ScanResult
	if strings.TrimSpace(root) == "" {
		return res, fmt.Errorf("%w: library root not set", model.ErrInvalid)
	}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("library root does not exist", "root", root)
		return res, nil
	}

	lib, err := fs.NewLibrary(root, s.ignore)
	if err != nil {
		return res, err
	}
	candidates, err := lib.Candidates()
	if err != nil {
		return res, fmt.Errorf("listing library: %w", err)
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.TotalFound++
		if c.ManifestPath == "" {
			s.logger.Debug("no manifest", "dir", c.Dir)
			continue
		}

		outcome, upgraded, err := s.importCandidate(ctx, c)
		if err != nil {
			res.Failed++
			s.logger.Warn("skipping manifest", "path", c.ManifestPath, "error", err)
			continue
		}
		if upgraded {
			res.Upgraded++
		}
		switch outcome {
		case Imported:
			res.NewlyImported++
		case Reconciled:
			res.Reconciled++
		}
	}

	s.logger.Info("library scanned", "root", lib.Root(),
		"found", res.TotalFound, "imported", res.NewlyImported,
		"upgraded", res.Upgraded, "reconciled", res.Reconciled, "failed", res.Failed)
	return res, nil
}

// ImportManifest imports a single manifest file. Its layout (pose, archived
// version) is inferred from where it sits in the library.
func (s *Scanner) ImportManifest(ctx context.Context, path string) (Outcome, error) {
	outcome, _, err := s.importCandidate(ctx, fs.Candidate{
		ManifestPath: path,
		Layout:       fs.LayoutOf(path),
	})
	return outcome, err
}

func (s *Scanner) importCandidate(ctx context.Context, c fs.Candidate) (Outcome, bool, error) {
	m, err := fs.ReadManifest(c.ManifestPath)
	if err != nil {
		return Unchanged, false, err
	}
	if strings.TrimSpace(m.Name) == "" {
		return Unchanged, false, fmt.Errorf("%w: manifest has no name", model.ErrInvalid)
	}

	var replaced string
	upgraded := false
	if m.IsLegacy() {
		replaced = m.AnimationID()
		if err := s.upgradeLegacy(m); err != nil {
			return Unchanged, false, err
		}
		upgraded = true
		s.logger.Info("upgraded legacy manifest", "path", m.Path, "old_id", replaced, "id", m.AnimationID())
	}

	id := m.AnimationID()
	if id == "" {
		return Unchanged, upgraded, fmt.Errorf("%w: manifest has no id", model.ErrInvalid)
	}

	outcome := Unchanged
	err = s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		anims := s.db.Animations().WithTx(tx)

		if replaced != "" && replaced != id {
			if err := anims.Delete(ctx, replaced); err != nil && !errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("replacing legacy record %s: %w", replaced, err)
			}
		}

		existing, err := anims.GetByUUID(ctx, id)
		if err == nil {
			changed, err := reconcile(ctx, anims, existing, m)
			if changed {
				outcome = Reconciled
			}
			return err
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		a, err := s.toAnimation(ctx, tx, m, c.Layout)
		if err != nil {
			return err
		}
		if _, err := anims.Add(ctx, a); err != nil {
			return err
		}
		outcome = Imported
		return nil
	})
	if err != nil {
		return Unchanged, upgraded, fmt.Errorf("importing %s: %w", c.ManifestPath, err)
	}
	return outcome, upgraded, nil
}

// upgradeLegacy gives a pre-versioning manifest a fresh identity as the sole
// member of its own version group, drops its user-authored metadata, stamps
// the app version and rewrites the file. Rig, timing and file fields stay.
func (s *Scanner) upgradeLegacy(m *fs.Manifest) error {
	id := s.ids.New()
	err := m.Set(map[string]any{
		"uuid":             id,
		"id":               id,
		"version":          model.DefaultVersion,
		"version_label":    model.VersionLabel(model.DefaultVersion),
		"version_group_id": id,
		"is_latest":        true,
		"description":      "",
		"author":           "",
		"tags":             []string{},
		"is_favorite":      false,
		"is_locked":        false,
		"status":           string(model.StatusNone),
		"app_version":      s.appVersion,
	})
	if err != nil {
		return err
	}
	if err := fs.WriteManifest(m); err != nil {
		return fmt.Errorf("rewriting legacy manifest: %w", err)
	}
	return nil
}

// reconcile copies the fields a manifest may legitimately change after import
// (pose flags and naming) onto the stored animation.
func reconcile(ctx context.Context, anims *database.AnimationRepository, a *model.Animation, m *fs.Manifest) (bool, error) {
	var p model.AnimationPatch
	if m.IsPose != nil && bool(*m.IsPose) != a.IsPose {
		p.IsPose = model.Ptr(bool(*m.IsPose))
	}
	if m.IsPartial != nil && bool(*m.IsPartial) != a.IsPartial {
		p.IsPartial = model.Ptr(bool(*m.IsPartial))
	}
	if m.NamingFields != nil && !maps.Equal(map[string]string(m.NamingFields), a.NamingFields) {
		fields := map[string]string(m.NamingFields)
		p.NamingFields = &fields
	}
	if m.NamingTemplate != nil && *m.NamingTemplate != a.NamingTemplate {
		p.NamingTemplate = m.NamingTemplate
	}
	if p.Empty() {
		return false, nil
	}
	if err := anims.Update(ctx, a.UUID, p); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scanner) toAnimation(ctx context.Context, tx *sqlx.Tx, m *fs.Manifest, layout fs.Layout) (*model.Animation, error) {
	a := FromManifest(m, layout)
	if path := model.CleanFolderPath(m.FolderPath); path != "" {
		id, err := s.db.Folders().WithTx(tx).EnsureExists(ctx, path, m.FolderDescription)
		if err != nil {
			return nil, fmt.Errorf("creating folder %s: %w", path, err)
		}
		a.FolderID = id
	}
	return a, nil
}

// FromManifest maps a manifest onto an animation record. FolderID is left
// zero; callers resolve m.FolderPath themselves.
func FromManifest(m *fs.Manifest, layout fs.Layout) *model.Animation {
	a := &model.Animation{
		UUID:            m.AnimationID(),
		Name:            strings.TrimSpace(m.Name),
		Description:     m.Description,
		RigType:         m.RigType,
		ArmatureName:    m.ArmatureName,
		BoneCount:       m.BoneCount,
		FrameStart:      m.FrameStart,
		FrameEnd:        m.FrameEnd,
		FrameCount:      m.FrameCount,
		DurationSeconds: m.DurationSeconds,
		FPS:             m.FPS,
		BlendFilePath:   m.BlendFilePath,
		JSONFilePath:    m.JSONFilePath,
		PreviewPath:     m.PreviewPath,
		ThumbnailPath:   m.ThumbnailPath,
		FileSizeMB:      m.FileSizeMB,
		Tags:            []string(m.Tags),
		Author:          m.Author,
		Gradient: model.Gradient{
			Enabled: bool(m.UseGradient),
			Top:     m.GradientTop,
			Bottom:  m.GradientBottom,
		},
		IsFavorite:     bool(m.IsFavorite),
		IsLocked:       bool(m.IsLocked),
		Version:        m.Version,
		VersionLabel:   m.VersionLabel,
		VersionGroupID: m.VersionGroupID,
		IsLatest:       true,
		Status:         model.NormalizeStatus(m.Status),
		IsPose:         layout == fs.LayoutPose,
		NamingFields:   map[string]string(m.NamingFields),
		CreatedAt:      parseCreated(m.CreatedDate),
	}
	if a.JSONFilePath == "" {
		a.JSONFilePath = m.Path
	}
	if m.IsLatest != nil {
		a.IsLatest = bool(*m.IsLatest)
	}
	if m.IsPose != nil {
		a.IsPose = bool(*m.IsPose)
	}
	if m.IsPartial != nil {
		a.IsPartial = bool(*m.IsPartial)
	}
	if m.NamingTemplate != nil {
		a.NamingTemplate = *m.NamingTemplate
	}
	if layout == fs.LayoutVersion {
		// archived snapshots never displace the current version
		a.IsLatest = false
		if a.VersionGroupID == "" {
			a.VersionGroupID = a.UUID
		}
	}
	return a
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseCreated reads the manifest's created_date. Unparseable values leave
// the timestamp to the repository default.
func parseCreated(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
