package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Well-known directories below a library root.
const (
	HotDir     = "library"
	ActionsDir = "actions"
	PosesDir   = "poses"
	ColdDir    = "_versions"
)

// Layout says where under the library a candidate directory was found.
type Layout int

const (
	// LayoutAction is library/actions/<name>.
	LayoutAction Layout = iota
	// LayoutPose is library/poses/<name>.
	LayoutPose
	// LayoutLegacy is library/<name>, the flat layout of older releases.
	LayoutLegacy
	// LayoutVersion is _versions/<name>/<version>, an archived snapshot.
	LayoutVersion
)

func (l Layout) String() string {
	switch l {
	case LayoutAction:
		return "action"
	case LayoutPose:
		return "pose"
	case LayoutLegacy:
		return "legacy"
	case LayoutVersion:
		return "version"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Candidate is a directory expected to hold one animation. ManifestPath is
// empty when the directory has no manifest.
type Candidate struct {
	Dir          string
	ManifestPath string
	Layout       Layout
}

// Cold reports whether the candidate lives in the version archive.
func (c Candidate) Cold() bool { return c.Layout == LayoutVersion }

// Library reads the directory layout of an animation library.
type Library struct {
	root   string
	ignore *IgnoreMatcher
}

// NewLibrary opens the library at root. ignore adds patterns to the defaults
// and the library's own ignore file.
func NewLibrary(root string, ignore []string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root is not a directory: %s", abs)
	}
	matcher, err := LoadIgnoreMatcher(abs, ignore)
	if err != nil {
		return nil, err
	}
	return &Library{root: abs, ignore: matcher}, nil
}

// Root returns the absolute library root.
func (l *Library) Root() string { return l.root }

// Candidates lists every animation directory of the hot and cold trees in a
// stable order. Missing trees contribute nothing.
func (l *Library) Candidates() ([]Candidate, error) {
	var out []Candidate

	hot := filepath.Join(l.root, HotDir)
	children, err := l.subdirs(hot)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		switch filepath.Base(child) {
		case ActionsDir, PosesDir:
			layout := LayoutAction
			if filepath.Base(child) == PosesDir {
				layout = LayoutPose
			}
			dirs, err := l.subdirs(child)
			if err != nil {
				return nil, err
			}
			for _, dir := range dirs {
				out = append(out, l.candidate(dir, filepath.Base(dir), layout))
			}
		default:
			out = append(out, l.candidate(child, filepath.Base(child), LayoutLegacy))
		}
	}

	cold := filepath.Join(l.root, ColdDir)
	names, err := l.subdirs(cold)
	if err != nil {
		return nil, err
	}
	for _, nameDir := range names {
		versions, err := l.subdirs(nameDir)
		if err != nil {
			return nil, err
		}
		for _, dir := range versions {
			out = append(out, l.candidate(dir, filepath.Base(nameDir), LayoutVersion))
		}
	}
	return out, nil
}

func (l *Library) candidate(dir, name string, layout Layout) Candidate {
	return Candidate{Dir: dir, ManifestPath: findManifest(dir, name), Layout: layout}
}

// findManifest returns <dir>/<name>.json, or the only other .json file in dir
// when capture tools named the file after the action instead.
func findManifest(dir, name string) string {
	preferred := filepath.Join(dir, name+ManifestExt)
	if info, err := os.Stat(preferred); err == nil && info.Mode().IsRegular() {
		return preferred
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var found []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ManifestExt) && !strings.HasPrefix(e.Name(), ".") {
			found = append(found, e.Name())
		}
	}
	if len(found) != 1 {
		return ""
	}
	return filepath.Join(dir, found[0])
}

// subdirs returns the non-ignored directories directly below dir, sorted.
// Symlinks are not followed.
func (l *Library) subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(l.root, full)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", full, err)
		}
		if l.ignore.Match(rel) {
			continue
		}
		dirs = append(dirs, full)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// LayoutOf infers the layout of a manifest from its position in the library.
// Paths outside the known trees are treated as actions.
func LayoutOf(manifestPath string) Layout {
	dir := filepath.Dir(manifestPath)
	parent := filepath.Dir(dir)
	grandparent := filepath.Dir(parent)
	switch {
	case filepath.Base(grandparent) == ColdDir:
		return LayoutVersion
	case filepath.Base(parent) == PosesDir && filepath.Base(grandparent) == HotDir:
		return LayoutPose
	case filepath.Base(parent) == ActionsDir && filepath.Base(grandparent) == HotDir:
		return LayoutAction
	case filepath.Base(parent) == HotDir:
		return LayoutLegacy
	default:
		return LayoutAction
	}
}
