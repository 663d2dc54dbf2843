package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Defaults applied to version fields that are missing from a row or manifest.
const (
	DefaultVersion      = 1
	DefaultRigType      = "unknown"
	versionLabelPattern = "v%03d"
)

// VersionLabel formats a version number the way labels are displayed, e.g. "v001".
func VersionLabel(version int) string {
	return fmt.Sprintf(versionLabelPattern, version)
}

// EncodeTags serializes tags as a JSON array. Blank and duplicate entries are
// dropped; order of first occurrence is kept.
func EncodeTags(tags []string) string {
	b, err := json.Marshal(NormalizeTags(tags))
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeTags parses a JSON array column. Absent or malformed input yields an
// empty, non-nil slice.
func DecodeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return NormalizeTags(tags)
}

// NormalizeTags trims tags and removes blanks and duplicates.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// MergeTags returns the union of a and b, a's order first.
func MergeTags(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return NormalizeTags(merged)
}

// EncodeNamingFields serializes naming fields as a JSON object. A nil map
// encodes as "{}".
func EncodeNamingFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "{}"
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeNamingFields parses a JSON object column. Non-string values are
// rendered with their JSON text; malformed input yields an empty map.
func DecodeNamingFields(raw string) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return fields
	}
	var loose map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return fields
	}
	for k, v := range loose {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = s
			continue
		}
		fields[k] = string(v)
	}
	return fields
}
