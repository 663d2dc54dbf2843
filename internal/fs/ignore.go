package fs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// IgnoreFileName is the per-library ignore file, read from the library root.
const IgnoreFileName = ".animlibignore"

// DefaultIgnorePatterns skip hidden directories such as .archive, .trash and
// editor caches. A library opts out by listing "!defaults".
var DefaultIgnorePatterns = []string{".*"}

const noDefaults = "!defaults"

// ignoreRule is one glob. Anchored rules contain a '/' and match the whole
// slash-separated path below the library root; the rest match a basename.
type ignoreRule struct {
	glob     string
	anchored bool
}

func (r ignoreRule) match(rel string) bool {
	target := path.Base(rel)
	if r.anchored {
		target = rel
	}
	ok, _ := path.Match(r.glob, target)
	return ok
}

// IgnoreMatcher decides which library directories the scanner skips.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles raw ignore lines. Blank lines, '#' comments, the
// "!defaults" switch and malformed globs are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		glob := strings.TrimSuffix(strings.TrimSpace(line), "/")
		if glob == "" || glob == noDefaults || strings.HasPrefix(glob, "#") {
			continue
		}
		if _, err := path.Match(glob, ""); errors.Is(err, path.ErrBadPattern) {
			continue
		}
		m.rules = append(m.rules, ignoreRule{glob: glob, anchored: strings.Contains(glob, "/")})
	}
	return m
}

// LoadIgnoreMatcher combines the default patterns, the configured ones and
// the library's ignore file.
func LoadIgnoreMatcher(root string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	lines := slices.Concat(configured, fromFile)
	if !slices.ContainsFunc(lines, func(l string) bool { return strings.TrimSpace(l) == noDefaults }) {
		lines = slices.Concat(DefaultIgnorePatterns, lines)
	}
	return NewIgnoreMatcher(lines), nil
}

// Match reports whether rel, a path relative to the library root, is ignored.
func (m *IgnoreMatcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	return slices.ContainsFunc(m.rules, func(r ignoreRule) bool { return r.match(rel) })
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when there
// is none.
func ParseIgnoreFile(name string) ([]string, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return strings.Split(strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), "\n"), nil
}
