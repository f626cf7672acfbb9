// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"maps"
	"time"
)

// Status is the lifecycle state of an entry.
type Status string

// Entry statuses
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

// Visibility controls whether a published entry is listed publicly.
type Visibility string

// Entry visibilities
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Entry is one structured content record within a collection.
type Entry struct {
	ID         string     `json:"id"`
	Collection string     `json:"collection"`
	Slug       string     `json:"slug"`
	Status     Status     `json:"status"`
	Visibility Visibility `json:"visibility"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt"`
	ScheduledAt *time.Time `json:"scheduledAt"`

	// Data is the live payload once published and the working payload while draft.
	Data map[string]any `json:"data"`
	// PendingData holds unpublished edits layered on a published entry.
	PendingData map[string]any `json:"pendingData,omitempty"`

	SEO      map[string]any `json:"seo,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	External map[string]any `json:"external,omitempty"`
}

// IsPublished returns true if the entry is live.
func (e *Entry) IsPublished() bool {
	return e.Status == StatusPublished
}

// HasPending returns true if a published entry carries unpublished edits.
func (e *Entry) HasPending() bool {
	return e.IsPublished() && len(e.PendingData) > 0
}

// EffectiveDate is the date public listings sort by.
func (e *Entry) EffectiveDate() time.Time {
	if e.PublishedAt != nil {
		return *e.PublishedAt
	}
	return e.CreatedAt
}

// Title returns the string stored under field, or "".
func (e *Entry) Title(field string) string {
	s, _ := e.Data[field].(string)
	return s
}

// Clone returns a copy whose top-level maps can be modified independently.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Data = maps.Clone(e.Data)
	c.PendingData = maps.Clone(e.PendingData)
	c.SEO = maps.Clone(e.SEO)
	c.Metadata = maps.Clone(e.Metadata)
	c.External = maps.Clone(e.External)
	return &c
}

// MergeData shallow-merges layers left to right; later layers win per key.
// Nil layers are skipped. The result is never nil.
func MergeData(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}
