package model

import "time"

// RootFolderName is the display name of the single parentless folder.
const RootFolderName = "Root"

// Folder is a node in the library's folder hierarchy. Path is the slash-joined
// chain of ancestor names below the root; the root itself has an empty path.
type Folder struct {
	ID          int64
	Name        string
	ParentID    *int64 // nil only for the root
	Path        string
	Description string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// IsRoot reports whether the folder is the library root.
func (f *Folder) IsRoot() bool { return f.ParentID == nil }

// Gradient holds the optional custom thumbnail gradient of an animation.
type Gradient struct {
	Enabled bool   `json:"enabled"`
	Top     string `json:"top"`
	Bottom  string `json:"bottom"`
}

// Animation is an active animation clip. UUID is the stable identity;
// ID is the database surrogate key.
type Animation struct {
	ID          int64
	UUID        string
	Name        string
	Description string
	FolderID    int64

	RigType      string
	ArmatureName string
	BoneCount    int

	FrameStart      int
	FrameEnd        int
	FrameCount      int
	DurationSeconds float64
	FPS             int

	BlendFilePath string
	JSONFilePath  string
	PreviewPath   string
	ThumbnailPath string
	FileSizeMB    float64

	Tags     []string
	Author   string
	Gradient Gradient

	IsFavorite   bool
	LastViewedAt *time.Time
	CustomOrder  *int
	IsLocked     bool

	Version        int
	VersionLabel   string
	VersionGroupID string
	IsLatest       bool

	Status    Status
	IsPose    bool
	IsPartial bool

	NamingFields   map[string]string
	NamingTemplate string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ArchiveItem is a soft-deleted animation snapshot kept for restoration.
type ArchiveItem struct {
	ID                 int64
	UUID               string
	Name               string
	OriginalFolderID   *int64
	OriginalFolderPath string
	RigType            string
	FrameCount         int
	DurationSeconds    float64
	FileSizeMB         float64
	ArchiveFolderPath  string
	ThumbnailPath      string
	ArchivedAt         time.Time
	OriginalCreatedAt  time.Time
}

// TrashItem is an archived animation staged for permanent deletion.
type TrashItem struct {
	ID              int64
	UUID            string
	Name            string
	TrashFolderPath string
	ThumbnailPath   string
	TrashedAt       time.Time
	ArchivedAt      time.Time
}

// ReviewNote is a frame-anchored review comment on an animation.
type ReviewNote struct {
	ID            int64
	AnimationUUID string
	Frame         int
	Note          string
	Author        string
	CreatedAt     time.Time
	Resolved      bool
}

// Metadata is the user-authored subset of an animation, exported in bulk so a
// rebuilt library can be re-annotated.
type Metadata struct {
	Tags           []string          `json:"tags,omitempty"`
	IsFavorite     bool              `json:"is_favorite,omitempty"`
	IsLocked       bool              `json:"is_locked,omitempty"`
	Gradient       *Gradient         `json:"custom_gradient,omitempty"`
	FolderPath     string            `json:"folder_path,omitempty"`
	Version        int               `json:"version,omitempty"`
	VersionLabel   string            `json:"version_label,omitempty"`
	VersionGroupID string            `json:"version_group_id,omitempty"`
	IsLatest       bool              `json:"is_latest,omitempty"`
	Status         Status            `json:"status,omitempty"`
	IsPose         bool              `json:"is_pose,omitempty"`
	IsPartial      bool              `json:"is_partial,omitempty"`
	NamingFields   map[string]string `json:"naming_fields,omitempty"`
	NamingTemplate string            `json:"naming_template,omitempty"`
}
