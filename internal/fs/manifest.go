package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"animlib/internal/model"
)

// ManifestExt is the extension of per-animation manifest files.
const ManifestExt = ".json"

// Flag is a manifest boolean. Manifests written by older tools store flags
// as 0/1 or as strings, so all of those decode.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "", "null", "false", "0", "no":
		*f = false
	case "true", "1", "yes":
		*f = true
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid flag %s", data)
		}
		*f = n != 0
	}
	return nil
}

// Tags decodes either a JSON array or a JSON-encoded array string.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = model.NormalizeTags(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = model.DecodeTags(s)
		return nil
	}
	// anything else is treated as no tags
	*t = nil
	return nil
}

// NamingFields decodes either a JSON object or a JSON-encoded object string.
type NamingFields map[string]string

func (n *NamingFields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = model.DecodeNamingFields(s)
		return nil
	}
	*n = model.DecodeNamingFields(string(data))
	return nil
}

// ManifestFields are the keys of a manifest the library understands. Pointer
// fields distinguish an absent key from its zero value.
type ManifestFields struct {
	UUID       string `json:"uuid"`
	ID         string `json:"id"`
	AppVersion string `json:"app_version"`

	Name              string `json:"name"`
	Description       string `json:"description"`
	FolderPath        string `json:"folder_path"`
	FolderDescription string `json:"folder_description"`

	RigType      string `json:"rig_type"`
	ArmatureName string `json:"armature_name"`
	BoneCount    int    `json:"bone_count"`

	FrameStart      int     `json:"frame_start"`
	FrameEnd        int     `json:"frame_end"`
	FrameCount      int     `json:"frame_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	FPS             int     `json:"fps"`

	BlendFilePath string  `json:"blend_file_path"`
	JSONFilePath  string  `json:"json_file_path"`
	PreviewPath   string  `json:"preview_path"`
	ThumbnailPath string  `json:"thumbnail_path"`
	FileSizeMB    float64 `json:"file_size_mb"`

	Tags           Tags   `json:"tags"`
	Author         string `json:"author"`
	UseGradient    Flag   `json:"use_custom_thumbnail_gradient"`
	GradientTop    string `json:"thumbnail_gradient_top"`
	GradientBottom string `json:"thumbnail_gradient_bottom"`

	IsFavorite Flag `json:"is_favorite"`
	IsLocked   Flag `json:"is_locked"`

	Version        int    `json:"version"`
	VersionLabel   string `json:"version_label"`
	VersionGroupID string `json:"version_group_id"`
	IsLatest       *Flag  `json:"is_latest"`

	Status    string `json:"status"`
	IsPose    *Flag  `json:"is_pose"`
	IsPartial *Flag  `json:"is_partial"`

	NamingFields   NamingFields `json:"naming_fields"`
	NamingTemplate *string      `json:"naming_template"`

	CreatedDate string `json:"created_date"`
}

// Manifest is a parsed manifest file. Keys the library does not know are kept
// so a rewrite never loses data written by other tools.
type Manifest struct {
	Path string
	ManifestFields
	raw map[string]json.RawMessage
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m := &Manifest{Path: path}
	if err := json.Unmarshal(data, &m.raw); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if err := m.decode(); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) decode() error {
	data, err := json.Marshal(m.raw)
	if err != nil {
		return err
	}
	m.ManifestFields = ManifestFields{}
	return json.Unmarshal(data, &m.ManifestFields)
}

// AnimationID returns the manifest's id, preferring "uuid" over the older "id".
func (m *Manifest) AnimationID() string {
	if m.UUID != "" {
		return m.UUID
	}
	return m.ID
}

// IsLegacy reports whether the manifest predates app_version stamping.
func (m *Manifest) IsLegacy() bool {
	return m.AppVersion == ""
}

// Set replaces top-level keys. The typed fields are refreshed from the result.
func (m *Manifest) Set(values map[string]any) error {
	if m.raw == nil {
		m.raw = make(map[string]json.RawMessage)
	}
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding manifest key %s: %w", k, err)
		}
		m.raw[k] = data
	}
	return m.decode()
}

// Bytes renders the manifest as indented JSON.
func (m *Manifest) Bytes() ([]byte, error) {
	data, err := json.MarshalIndent(m.raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteManifest atomically rewrites the manifest at m.Path.
func WriteManifest(m *Manifest) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	return WriteFileAtomic(m.Path, data, 0644)
}

// WriteFileAtomic writes data to a temp file in the destination directory,
// syncs it and renames it over path. Readers see the old or the new content,
// never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := bytes.NewReader(data).WriteTo(tmpFile); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
