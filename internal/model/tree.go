package model

// FolderTree is a parent-to-children index over a snapshot of folders.
type FolderTree struct {
	children map[int64][]int64
	exists   map[int64]struct{}
}

// NewFolderTree indexes the given folders.
func NewFolderTree(folders []Folder) *FolderTree {
	t := &FolderTree{
		children: make(map[int64][]int64, len(folders)),
		exists:   make(map[int64]struct{}, len(folders)),
	}
	for _, f := range folders {
		t.exists[f.ID] = struct{}{}
		if f.ParentID != nil {
			t.children[*f.ParentID] = append(t.children[*f.ParentID], f.ID)
		}
	}
	return t
}

// Contains reports whether id is in the snapshot.
func (t *FolderTree) Contains(id int64) bool {
	_, ok := t.exists[id]
	return ok
}

// Descendants returns id followed by all of its transitive children in
// breadth-first order. Unknown ids yield nil. The walk is iterative and tracks
// visited nodes, so a corrupted cyclic snapshot still terminates.
func (t *FolderTree) Descendants(id int64) []int64 {
	if !t.Contains(id) {
		return nil
	}
	out := []int64{id}
	visited := map[int64]struct{}{id: {}}
	for i := 0; i < len(out); i++ {
		for _, child := range t.children[out[i]] {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
		}
	}
	return out
}

// IsDescendant reports whether candidate is ancestor itself or lies below it.
func (t *FolderTree) IsDescendant(ancestor, candidate int64) bool {
	for _, id := range t.Descendants(ancestor) {
		if id == candidate {
			return true
		}
	}
	return false
}
