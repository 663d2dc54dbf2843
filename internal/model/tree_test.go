package model

import (
	"reflect"
	"testing"
)

func folder(id int64, parent int64) Folder {
	f := Folder{ID: id}
	if parent != 0 {
		f.ParentID = &parent
	}
	return f
}

func TestFolderTree_Descendants(t *testing.T) {
	//   1
	//  / \
	// 2   3
	// |
	// 4
	tree := NewFolderTree([]Folder{folder(1, 0), folder(2, 1), folder(3, 1), folder(4, 2)})

	tests := []struct {
		name string
		id   int64
		want []int64
	}{
		{"root includes everything", 1, []int64{1, 2, 3, 4}},
		{"subtree", 2, []int64{2, 4}},
		{"leaf is just itself", 4, []int64{4}},
		{"unknown id", 99, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tree.Descendants(tt.id)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Descendants(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestFolderTree_CycleTerminates(t *testing.T) {
	tree := NewFolderTree([]Folder{folder(1, 2), folder(2, 1)})
	got := tree.Descendants(1)
	if len(got) != 2 {
		t.Errorf("Descendants() = %v, want 2 entries", got)
	}
}

func TestFolderTree_IsDescendant(t *testing.T) {
	tree := NewFolderTree([]Folder{folder(1, 0), folder(2, 1), folder(3, 2)})
	if !tree.IsDescendant(1, 3) {
		t.Error("IsDescendant(1, 3) = false, want true")
	}
	if !tree.IsDescendant(2, 2) {
		t.Error("IsDescendant(2, 2) = false, want true")
	}
	if tree.IsDescendant(3, 1) {
		t.Error("IsDescendant(3, 1) = true, want false")
	}
}

func TestFolderPaths(t *testing.T) {
	if got := JoinFolderPath("", "Body"); got != "Body" {
		t.Errorf("JoinFolderPath(root) = %q, want Body", got)
	}
	if got := JoinFolderPath("Body", "Combat"); got != "Body/Combat" {
		t.Errorf("JoinFolderPath() = %q, want Body/Combat", got)
	}
	if got := CleanFolderPath("/Body//Combat/ "); got != "Body/Combat" {
		t.Errorf("CleanFolderPath() = %q, want Body/Combat", got)
	}
	if got := SplitFolderPath(""); len(got) != 0 {
		t.Errorf("SplitFolderPath(\"\") = %q, want empty", got)
	}
}
