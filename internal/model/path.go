package model

import "strings"

// JoinFolderPath builds a child folder's path from its parent's. The root's
// empty path contributes nothing, so children of the root have path == name.
func JoinFolderPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// SplitFolderPath splits a folder path into its non-empty segments.
// Leading, trailing, and repeated slashes are ignored.
func SplitFolderPath(path string) []string {
	raw := strings.Split(path, "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// CleanFolderPath normalizes a user-supplied folder path to the stored form.
func CleanFolderPath(path string) string {
	return strings.Join(SplitFolderPath(path), "/")
}
