// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package entry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Default listing parameters
const (
	DefaultSortField = "createdAt"
	MaxListLimit     = 500
)

// ListOptions filter, sort and paginate a collection listing.
type ListOptions struct {
	Status model.Status // Empty lists every status
	// SortField is an entry field (id, slug, status, createdAt, updatedAt,
	// publishedAt, scheduledAt) or a data field, optionally written "data.name".
	SortField string
	SortAsc   bool // Default is descending
	Limit     int  // 0 means no limit
	Offset    int
}

// ListResult is a page of entries plus the total before pagination.
type ListResult struct {
	Entries []*model.Entry
	Total   int
}

// Collections returns the registered collections plus any found in storage.
func (r *Repository) Collections(ctx context.Context) ([]string, error) {
	names := r.schemas.Names()
	found, err := r.backend.List(ctx, storage.NewKey(storage.KindEntries))
	if err != nil {
		return nil, err
	}
	for _, n := range found {
		if !strings.HasSuffix(n, fileExt) && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names, nil
}

// all reads every entry of a collection. Unreadable documents are logged and
// skipped so one bad file does not hide the rest.
func (r *Repository) all(ctx context.Context, collection string) ([]*model.Entry, error) {
	names, err := r.backend.List(ctx, collectionKey(collection))
	if err != nil {
		return nil, err
	}
	entries := make([]*model.Entry, 0, len(names))
	for _, name := range names {
		slug, ok := strings.CutSuffix(name, fileExt)
		if !ok {
			continue
		}
		e, _, err := r.load(ctx, collection, slug)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("skipping unreadable entry", "collection", collection, "slug", slug, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// List returns the entries of a collection. The whole collection is read,
// then filtered, sorted and paginated in memory.
func (r *Repository) List(ctx context.Context, collection string, opts ListOptions) (*ListResult, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, invalidField(collection, "status", "unknown status %q", opts.Status)
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, invalidField(collection, "limit", "limit and offset must not be negative")
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}

	entries, err := r.all(ctx, collection)
	if err != nil {
		return nil, err
	}
	if opts.Status != "" {
		entries = slices.DeleteFunc(entries, func(e *model.Entry) bool { return e.Status != opts.Status })
	}

	field := opts.SortField
	if field == "" {
		field = DefaultSortField
	}
	slices.SortStableFunc(entries, func(a, b *model.Entry) int {
		c := compareValues(sortValue(a, field), sortValue(b, field))
		if c == 0 {
			c = strings.Compare(a.Slug, b.Slug)
		}
		if !opts.SortAsc {
			c = -c
		}
		return c
	})

	total := len(entries)
	start := min(opts.Offset, total)
	end := total
	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}
	return &ListResult{Entries: entries[start:end], Total: total}, nil
}

// Published returns live public entries of the given collections (all known
// collections when none are given), newest effective date first.
func (r *Repository) Published(ctx context.Context, collections ...string) ([]*model.Entry, error) {
	if len(collections) == 0 {
		var err error
		if collections, err = r.Collections(ctx); err != nil {
			return nil, err
		}
	}
	var out []*model.Entry
	for _, c := range collections {
		entries, err := r.all(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsPublished() && e.Visibility != model.VisibilityPrivate {
				out = append(out, e)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *model.Entry) int {
		return b.EffectiveDate().Compare(a.EffectiveDate())
	})
	return out, nil
}

// FindByID scans every collection for the entry with id.
func (r *Repository) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	collections, err := r.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		entries, err := r.all(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
}

// All returns every entry of every known collection.
func (r *Repository) All(ctx context.Context) ([]*model.Entry, error) {
	collections, err := r.Collections(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Entry
	for _, c := range collections {
		entries, err := r.all(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func sortValue(e *model.Entry, field string) any {
	switch field {
	case "id":
		return e.ID
	case "slug":
		return e.Slug
	case "status":
		return string(e.Status)
	case "createdAt":
		return e.CreatedAt
	case "updatedAt":
		return e.UpdatedAt
	case "publishedAt":
		if e.PublishedAt == nil {
			return nil
		}
		return *e.PublishedAt
	case "scheduledAt":
		if e.ScheduledAt == nil {
			return nil
		}
		return *e.ScheduledAt
	}
	return e.Data[strings.TrimPrefix(field, "data.")]
}

// compareValues orders nil first, then by type: times, numbers, bools and
// strings compare naturally; mixed types compare by their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
