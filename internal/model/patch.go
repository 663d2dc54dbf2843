package model

import (
	"fmt"
	"strings"
)

// AnimationPatch is a partial update of an Animation. Nil fields are left
// unchanged. CustomOrder is cleared with ClearCustomOrder.
type AnimationPatch struct {
	Name        *string
	Description *string
	FolderID    *int64

	RigType      *string
	ArmatureName *string
	BoneCount    *int

	FrameStart      *int
	FrameEnd        *int
	FrameCount      *int
	DurationSeconds *float64
	FPS             *int

	BlendFilePath *string
	JSONFilePath  *string
	PreviewPath   *string
	ThumbnailPath *string
	FileSizeMB    *float64

	Tags     *[]string
	Author   *string
	Gradient *Gradient

	IsFavorite       *bool
	CustomOrder      *int
	ClearCustomOrder bool
	IsLocked         *bool

	Version        *int
	VersionLabel   *string
	VersionGroupID *string
	IsLatest       *bool

	Status    *Status
	IsPose    *bool
	IsPartial *bool

	NamingFields   *map[string]string
	NamingTemplate *string
}

// Validate rejects values no animation may hold.
func (p *AnimationPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: animation name must not be empty", ErrInvalid)
	}
	if p.RigType != nil && strings.TrimSpace(*p.RigType) == "" {
		return fmt.Errorf("%w: rig type must not be empty", ErrInvalid)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, *p.Status)
	}
	if p.Version != nil && *p.Version < 1 {
		return fmt.Errorf("%w: version must be positive", ErrInvalid)
	}
	if p.VersionGroupID != nil && *p.VersionGroupID == "" {
		return fmt.Errorf("%w: version group id must not be empty", ErrInvalid)
	}
	if p.CustomOrder != nil && p.ClearCustomOrder {
		return fmt.Errorf("%w: custom order both set and cleared", ErrInvalid)
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *AnimationPatch) Empty() bool {
	return *p == AnimationPatch{}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }
