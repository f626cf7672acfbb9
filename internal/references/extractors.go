// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package references

import (
	"maps"
	"slices"
)

// Extractor finds and rewrites one shape of media reference inside an entry
// payload. Rewrite substitutes oldID with newID, or removes it when newID is
// empty, and reports whether data changed.
type Extractor interface {
	Name() string
	Refs(data map[string]any) []string
	Rewrite(data map[string]any, oldID, newID string) bool
}

// DefaultExtractors returns the built-in reference shapes. ListField runs
// before CoverField so the cover can fall back to the rewritten list.
func DefaultExtractors() []Extractor {
	return []Extractor{
		ListField{Field: "media"},
		CoverField{Field: "cover", ListField: "media"},
		Blocks{Field: "blocks", Gallery: "gallery", GalleryField: "media", Image: "image", ImageField: "mediaId"},
	}
}

// ListField is a list of media ids.
type ListField struct {
	Field string
}

// Name implements Extractor.
func (l ListField) Name() string { return "list:" + l.Field }

// Refs implements Extractor.
func (l ListField) Refs(data map[string]any) []string {
	return stringList(data[l.Field])
}

// Rewrite implements Extractor.
func (l ListField) Rewrite(data map[string]any, oldID, newID string) bool {
	out, changed := rewriteList(data[l.Field], oldID, newID)
	if changed {
		data[l.Field] = out
	}
	return changed
}

// CoverField is a single media id. When the id is removed it falls back to
// the first element of ListField, or is cleared.
type CoverField struct {
	Field     string
	ListField string
}

// Name implements Extractor.
func (c CoverField) Name() string { return "cover:" + c.Field }

// Refs implements Extractor.
func (c CoverField) Refs(data map[string]any) []string {
	if s, ok := data[c.Field].(string); ok && s != "" {
		return []string{s}
	}
	return nil
}

// Rewrite implements Extractor.
func (c CoverField) Rewrite(data map[string]any, oldID, newID string) bool {
	if s, ok := data[c.Field].(string); !ok || s != oldID {
		return false
	}
	if newID != "" {
		data[c.Field] = newID
		return true
	}
	if c.ListField != "" {
		if rest := stringList(data[c.ListField]); len(rest) > 0 {
			data[c.Field] = rest[0]
			return true
		}
	}
	delete(data, c.Field)
	return true
}

// Blocks handles structured content blocks: a list of objects with a "type".
// Gallery blocks carry a list of ids in GalleryField; image blocks a single
// id in ImageField.
type Blocks struct {
	Field        string
	Gallery      string
	GalleryField string
	Image        string
	ImageField   string
}

// Name implements Extractor.
func (b Blocks) Name() string { return "blocks:" + b.Field }

// Refs implements Extractor.
func (b Blocks) Refs(data map[string]any) []string {
	var refs []string
	for _, raw := range anyList(data[b.Field]) {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case b.Gallery:
			refs = append(refs, stringList(block[b.GalleryField])...)
		case b.Image:
			if s, ok := block[b.ImageField].(string); ok && s != "" {
				refs = append(refs, s)
			}
		}
	}
	return refs
}

// Rewrite implements Extractor. Blocks are copied before modification.
func (b Blocks) Rewrite(data map[string]any, oldID, newID string) bool {
	blocks := anyList(data[b.Field])
	if blocks == nil {
		return false
	}
	out := make([]any, len(blocks))
	changed := false
	for i, raw := range blocks {
		out[i] = raw
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case b.Gallery:
			if list, ok := rewriteList(block[b.GalleryField], oldID, newID); ok {
				nb := maps.Clone(block)
				nb[b.GalleryField] = list
				out[i], changed = nb, true
			}
		case b.Image:
			if s, ok := block[b.ImageField].(string); ok && s == oldID {
				nb := maps.Clone(block)
				if newID == "" {
					delete(nb, b.ImageField)
				} else {
					nb[b.ImageField] = newID
				}
				out[i], changed = nb, true
			}
		}
	}
	if changed {
		data[b.Field] = out
	}
	return changed
}

// rewriteList returns a new list with oldID replaced or removed. A
// substitution is dropped when newID is already listed; other entries,
// duplicates included, are kept as they are.
func rewriteList(v any, oldID, newID string) ([]any, bool) {
	items := anyList(v)
	present := newID != "" && slices.Contains(items, any(newID))
	out := make([]any, 0, len(items))
	changed := false
	for _, it := range items {
		if s, ok := it.(string); ok && s == oldID {
			changed = true
			if newID == "" || present {
				continue
			}
			present = true
			it = newID
		}
		out = append(out, it)
	}
	return out, changed
}

func anyList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func stringList(v any) []string {
	var out []string
	for _, it := range anyList(v) {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
