package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteManifest writes fields as the manifest <root>/<rel>/<name>.json,
// creating directories as needed, and returns the manifest path. name is
// the last element of rel.
func WriteManifest(t *testing.T, root, rel string, fields map[string]any) string {
	t.Helper()

	dir := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating %s: %v", rel, err)
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		t.Fatalf("encoding manifest: %v", err)
	}
	path := filepath.Join(dir, filepath.Base(dir)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

// ReadManifest decodes the manifest at path into a generic map.
func ReadManifest(t *testing.T, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding manifest %s: %v", path, err)
	}
	return doc
}
