// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package entry implements the entry repository and its draft/pending/published
// versioning rules on top of a storage backend.
package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/util"
)

const fileExt = ".json"

// Repository stores entries as JSON documents at entries/<collection>/<slug>.json.
type Repository struct {
	backend storage.Backend
	schemas *Registry
	logger  *slog.Logger
	now     func() time.Time

	// slugMu serializes slug allocation and renames within this process.
	slugMu sync.Mutex
}

// Options configure a Repository.
type Options struct {
	Schemas *Registry
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewRepository creates an entry repository on backend.
func NewRepository(backend storage.Backend, opts Options) *Repository {
	if opts.Schemas == nil {
		opts.Schemas = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Repository{
		backend: backend,
		schemas: opts.Schemas,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Schemas returns the schema registry.
func (r *Repository) Schemas() *Registry {
	return r.schemas
}

func entryKey(collection, slug string) storage.Key {
	return storage.NewKey(storage.KindEntries, collection, slug+fileExt)
}

func collectionKey(collection string) storage.Key {
	return storage.NewKey(storage.KindEntries, collection)
}

func checkCollection(collection string) error {
	if collection == "" || storage.CleanPath(collection) != collection || strings.Contains(collection, "/") {
		return &model.ValidationError{Fields: []model.FieldError{{Field: "collection", Message: fmt.Sprintf("invalid collection name %q", collection)}}}
	}
	return nil
}

// load reads an entry and the backend revision it was read at.
func (r *Repository) load(ctx context.Context, collection, slug string) (*model.Entry, string, error) {
	data, rev, err := storage.ReadRevision(ctx, r.backend, entryKey(collection, slug))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, "", fmt.Errorf("entry %s/%s: %w", collection, slug, model.ErrNotFound)
		}
		return nil, "", err
	}
	var e model.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, "", fmt.Errorf("decoding entry %s/%s: %w", collection, slug, err)
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	// The key is authoritative for identity.
	e.Collection, e.Slug = collection, slug
	return &e, rev, nil
}

func encode(e *model.Entry) ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding entry %s/%s: %w", e.Collection, e.Slug, err)
	}
	return append(data, '\n'), nil
}

// Get returns the entry at collection/slug.
func (r *Repository) Get(ctx context.Context, collection, slug string) (*model.Entry, error) {
	e, _, err := r.load(ctx, collection, slug)
	return e, err
}

// exists reports whether collection/slug is taken.
func (r *Repository) exists(ctx context.Context, collection, slug string) (bool, error) {
	return r.backend.Exists(ctx, entryKey(collection, slug))
}

// CreateInput holds the fields of a new entry.
type CreateInput struct {
	Slug        string // Derived from the title field when empty
	Status      model.Status
	Visibility  model.Visibility
	Data        map[string]any
	ScheduledAt *time.Time
	SEO         map[string]any
	Metadata    map[string]any
	External    map[string]any
}

// Create stores a new entry. A generated slug gets a -2, -3... suffix when
// taken; an explicit slug that is taken fails with model.ErrDuplicateSlug.
// Entries created as published are validated and stamped with PublishedAt.
func (r *Repository) Create(ctx context.Context, collection string, in CreateInput) (*model.Entry, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = model.StatusDraft
	}
	if !status.Valid() {
		return nil, invalidField(collection, "status", "unknown status %q", status)
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}

	schema := r.schemas.Get(collection)
	data := maps.Clone(in.Data)
	if data == nil {
		data = map[string]any{}
	}
	if status == model.StatusPublished {
		if err := schema.Validate(data); err != nil {
			return nil, err
		}
	}

	r.slugMu.Lock()
	defer r.slugMu.Unlock()

	var slug string
	if in.Slug != "" {
		if !util.IsValidSlug(in.Slug) {
			return nil, invalidField(collection, "slug", "invalid slug %q", in.Slug)
		}
		taken, err := r.exists(ctx, collection, in.Slug)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("entry %s/%s: %w", collection, in.Slug, model.ErrDuplicateSlug)
		}
		slug = in.Slug
	} else {
		base := util.SlugFromTitle(titleOf(data, schema.titleField()), "entry")
		var err error
		slug, err = util.UniqueSlug(ctx, base, func(ctx context.Context, s string) (bool, error) {
			return r.exists(ctx, collection, s)
		})
		if err != nil {
			return nil, err
		}
	}

	now := r.now().UTC()
	e := &model.Entry{
		ID:          uuid.NewString(),
		Collection:  collection,
		Slug:        slug,
		Status:      status,
		Visibility:  visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
		ScheduledAt: in.ScheduledAt,
		Data:        data,
		SEO:         maps.Clone(in.SEO),
		Metadata:    maps.Clone(in.Metadata),
		External:    maps.Clone(in.External),
	}
	if status == model.StatusPublished {
		e.PublishedAt = &now
	}

	content, err := encode(e)
	if err != nil {
		return nil, err
	}
	if err := r.backend.EnsureDir(ctx, collectionKey(collection)); err != nil {
		return nil, err
	}
	if err := r.backend.Write(ctx, entryKey(collection, slug), content,
		storage.WithMessage(fmt.Sprintf("Create %s/%s", collection, slug))); err != nil {
		return nil, err
	}

	r.logger.Info("entry created", "collection", collection, "slug", slug, "status", status)
	return e, nil
}

func titleOf(data map[string]any, field string) string {
	s, _ := data[field].(string)
	return s
}

func invalidField(collection, field, format string, args ...any) error {
	verr := &model.ValidationError{Collection: collection}
	verr.Add(field, format, args...)
	return verr
}

// UpdateInput holds a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Slug       *string
	Status     *model.Status
	Visibility *model.Visibility
	// Data is shallow-merged over the current payload; nil means no data change.
	Data          map[string]any
	ScheduledAt   *time.Time
	ClearSchedule bool
	SEO           map[string]any
	Metadata      map[string]any
	External      map[string]any
}

// Update applies in to the entry at collection/slug.
//
// A published entry saved without publishing keeps its live Data and collects
// the edit in PendingData (merge of Data, PendingData and the edit). Publishing
// (publish=true, or requesting "published" on an unpublished entry) folds
// Data, PendingData and the edit into Data, clears PendingData, sets the
// requested status (default published) and stamps PublishedAt. Anything else
// merges into Data in place. Required fields are only enforced on the payload
// that goes live; a pending save on a published entry is checked for field
// types only.
func (r *Repository) Update(ctx context.Context, collection, slug string, in UpdateInput, publish bool) (*model.Entry, error) {
	cur, rev, err := r.load(ctx, collection, slug)
	if err != nil {
		return nil, err
	}

	requested := cur.Status
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, invalidField(collection, "status", "unknown status %q", *in.Status)
		}
		requested = *in.Status
	}
	isPublishing := publish || (requested == model.StatusPublished && cur.Status != model.StatusPublished)

	now := r.now().UTC()
	next := cur.Clone()
	action := "Update"

	switch {
	case cur.IsPublished() && !isPublishing && in.Data != nil:
		next.PendingData = model.MergeData(cur.Data, cur.PendingData, in.Data)

	case isPublishing:
		next.Data = model.MergeData(cur.Data, cur.PendingData, in.Data)
		next.PendingData = nil
		next.Status = model.StatusPublished
		if in.Status != nil {
			next.Status = *in.Status
		}
		if next.Status == model.StatusPublished {
			next.PublishedAt = &now
			next.ScheduledAt = nil
			action = "Publish"
		} else if cur.IsPublished() {
			action = "Unpublish"
		}

	default:
		if in.Data != nil {
			next.Data = model.MergeData(cur.Data, in.Data)
		}
		next.Status = requested
		if cur.IsPublished() && requested != model.StatusPublished {
			// Leaving published: pending edits become the working copy.
			next.Data = model.MergeData(next.Data, cur.PendingData)
			next.PendingData = nil
		}
	}

	if in.Visibility != nil {
		next.Visibility = *in.Visibility
	}
	if in.ClearSchedule {
		next.ScheduledAt = nil
	} else if in.ScheduledAt != nil {
		next.ScheduledAt = in.ScheduledAt
	}
	mergeSide(&next.SEO, in.SEO)
	mergeSide(&next.Metadata, in.Metadata)
	mergeSide(&next.External, in.External)

	liveChanged := isPublishing || (next.Status == model.StatusPublished && next.PendingData == nil && in.Data != nil)
	if next.Status == model.StatusPublished {
		schema := r.schemas.Get(collection)
		var verr error
		switch {
		case liveChanged:
			verr = schema.Validate(next.Data)
		case next.PendingData != nil && in.Data != nil:
			verr = schema.ValidateTypes(next.PendingData)
		}
		if verr != nil {
			return nil, verr
		}
	}
	next.UpdatedAt = now

	newSlug := cur.Slug
	if in.Slug != nil && *in.Slug != cur.Slug {
		if !util.IsValidSlug(*in.Slug) {
			return nil, invalidField(collection, "slug", "invalid slug %q", *in.Slug)
		}
		newSlug = *in.Slug
	}
	next.Slug = newSlug

	content, err := encode(next)
	if err != nil {
		return nil, err
	}

	if newSlug == cur.Slug {
		err = r.backend.Write(ctx, entryKey(collection, slug), content,
			storage.WithRevision(rev),
			storage.WithMessage(fmt.Sprintf("%s %s/%s", action, collection, slug)))
		if err != nil {
			return nil, err
		}
	} else if err := r.rename(ctx, collection, slug, newSlug, content, rev); err != nil {
		return nil, err
	}

	r.logger.Info("entry updated", "collection", collection, "slug", newSlug,
		"status", next.Status, "publish", isPublishing, "pending", next.PendingData != nil)
	return next, nil
}

func (r *Repository) rename(ctx context.Context, collection, from, to string, content []byte, rev string) error {
	r.slugMu.Lock()
	defer r.slugMu.Unlock()

	taken, err := r.exists(ctx, collection, to)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("entry %s/%s: %w", collection, to, model.ErrDuplicateSlug)
	}
	err = storage.Rename(ctx, r.backend, entryKey(collection, from), entryKey(collection, to), content,
		storage.WithRevision(rev),
		storage.WithMessage(fmt.Sprintf("Rename %s/%s to %s/%s", collection, from, collection, to)))
	if errors.Is(err, model.ErrDuplicateKey) {
		return fmt.Errorf("entry %s/%s: %w", collection, to, model.ErrDuplicateSlug)
	}
	return err
}

func mergeSide(dst *map[string]any, src map[string]any) {
	if src == nil {
		return
	}
	*dst = model.MergeData(*dst, src)
}

// Rewrite applies fn to the stored entry and saves it in place when fn
// reports a change. Status, PublishedAt and the pending/live split are left
// alone; it is the maintenance path used by reference cleanup.
func (r *Repository) Rewrite(ctx context.Context, collection, slug string, fn func(e *model.Entry) bool) (bool, error) {
	cur, rev, err := r.load(ctx, collection, slug)
	if err != nil {
		return false, err
	}
	next := cur.Clone()
	if !fn(next) {
		return false, nil
	}
	next.Collection, next.Slug = collection, slug
	next.UpdatedAt = r.now().UTC()

	content, err := encode(next)
	if err != nil {
		return false, err
	}
	if err := r.backend.Write(ctx, entryKey(collection, slug), content,
		storage.WithRevision(rev),
		storage.WithMessage(fmt.Sprintf("Update references in %s/%s", collection, slug))); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the entry. There is no tombstone.
func (r *Repository) Delete(ctx context.Context, collection, slug string) error {
	err := r.backend.Delete(ctx, entryKey(collection, slug),
		storage.WithMessage(fmt.Sprintf("Delete %s/%s", collection, slug)))
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("entry %s/%s: %w", collection, slug, model.ErrNotFound)
		}
		return err
	}
	r.logger.Info("entry deleted", "collection", collection, "slug", slug)
	return nil
}
