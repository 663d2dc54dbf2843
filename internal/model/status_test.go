package model

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"", StatusNone, false},
		{"wip", StatusWIP, false},
		{"needs_work", StatusNeedsWork, false},
		{"final", StatusFinal, false},
		{"done", "", true},
		{"WIP", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("ParseStatus(%q) error = %v, want ErrInvalid", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus("bogus"); got != StatusNone {
		t.Errorf("NormalizeStatus(bogus) = %q, want none", got)
	}
	if got := NormalizeStatus("review"); got != StatusReview {
		t.Errorf("NormalizeStatus(review) = %q, want review", got)
	}
}

func TestAnimationPatch_Validate(t *testing.T) {
	bad := Status("bogus")
	tests := []struct {
		name    string
		patch   AnimationPatch
		wantErr bool
	}{
		{"empty patch", AnimationPatch{}, false},
		{"rename", AnimationPatch{Name: Ptr("walk")}, false},
		{"blank name", AnimationPatch{Name: Ptr("  ")}, true},
		{"unknown status", AnimationPatch{Status: &bad}, true},
		{"zero version", AnimationPatch{Version: Ptr(0)}, true},
		{"set and clear order", AnimationPatch{CustomOrder: Ptr(1), ClearCustomOrder: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}
