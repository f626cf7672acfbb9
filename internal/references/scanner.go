// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package references keeps media references inside entries consistent when
// media is deleted or replaced.
package references

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/olegiv/ocms-content/internal/model"
)

// Entries is the part of the entry repository the scanner needs.
type Entries interface {
	All(ctx context.Context) ([]*model.Entry, error)
	Rewrite(ctx context.Context, collection, slug string, fn func(e *model.Entry) bool) (bool, error)
}

// Scanner walks every entry of every known collection and rewrites media ids
// in both the live data and pending edits.
type Scanner struct {
	entries    Entries
	extractors []Extractor
	logger     *slog.Logger
}

// NewScanner creates a scanner. With no extractors the defaults are used.
func NewScanner(entries Entries, logger *slog.Logger, extractors ...Extractor) *Scanner {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{entries: entries, extractors: extractors, logger: logger}
}

// Refs returns the distinct media ids referenced by a payload.
func (s *Scanner) Refs(data map[string]any) []string {
	var out []string
	for _, x := range s.extractors {
		for _, id := range x.Refs(data) {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func (s *Scanner) references(e *model.Entry, id string) bool {
	return slices.Contains(s.Refs(e.Data), id) || slices.Contains(s.Refs(e.PendingData), id)
}

// Referencing returns the entries whose data or pending edits reference id.
func (s *Scanner) Referencing(ctx context.Context, id string) ([]*model.Entry, error) {
	all, err := s.entries.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Entry
	for _, e := range all {
		if s.references(e, id) {
			out = append(out, e)
		}
	}
	return out, nil
}

// RemoveMediaReferences strips id from every entry and returns how many
// entries changed.
func (s *Scanner) RemoveMediaReferences(ctx context.Context, id string) (int, error) {
	return s.rewrite(ctx, id, "")
}

// ReplaceMediaReferences points every reference to oldID at newID and returns
// how many entries changed.
func (s *Scanner) ReplaceMediaReferences(ctx context.Context, oldID, newID string) (int, error) {
	if newID == "" {
		verr := &model.ValidationError{Collection: "media"}
		verr.Add("newId", "is required")
		return 0, verr
	}
	if oldID == newID {
		return 0, nil
	}
	return s.rewrite(ctx, oldID, newID)
}

func (s *Scanner) rewrite(ctx context.Context, oldID, newID string) (int, error) {
	if oldID == "" {
		return 0, nil
	}
	affected, err := s.Referencing(ctx, oldID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, e := range affected {
		changed, err := s.entries.Rewrite(ctx, e.Collection, e.Slug, func(cur *model.Entry) bool {
			return s.apply(cur, oldID, newID)
		})
		if err != nil {
			return updated, fmt.Errorf("rewriting %s/%s: %w", e.Collection, e.Slug, err)
		}
		if changed {
			updated++
		}
	}

	s.logger.Info("media references rewritten", "media_id", oldID, "new_media_id", newID, "updated_entries", updated)
	return updated, nil
}

// apply runs every extractor over data and pending data.
func (s *Scanner) apply(e *model.Entry, oldID, newID string) bool {
	changed := false
	for _, payload := range []map[string]any{e.Data, e.PendingData} {
		if payload == nil {
			continue
		}
		for _, x := range s.extractors {
			if x.Rewrite(payload, oldID, newID) {
				changed = true
			}
		}
	}
	return changed
}
