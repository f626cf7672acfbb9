// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package media implements the media repository: the upload pipeline with
// variant tiers, metadata updates, and deletion or replacement with reference
// cleanup across entries.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/ocms-content/internal/imaging"
	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Upload limits and pipeline defaults
const (
	DefaultMaxUploadSize  = 20 * 1024 * 1024 // 20MB
	DefaultPrimaryVariant = model.VariantDisplay
	DefaultPosterAt       = 1.0 // seconds

	// posterEpsilon keeps the poster timestamp inside the stream.
	posterEpsilon = 0.1
)

// Processor is the byte-processing collaborator. imaging.Processor implements it.
type Processor interface {
	ProbeImage(data []byte) (imaging.ImageInfo, error)
	ResizeImage(data []byte, maxEdge, quality int, format string) ([]byte, imaging.ImageInfo, error)
	Placeholder(data []byte) (string, error)
	ProbeVideo(ctx context.Context, data []byte) (imaging.VideoInfo, error)
	ExtractFrame(ctx context.Context, data []byte, timestamp float64) ([]byte, error)
}

// References rewrites media ids inside entries. references.Scanner implements it.
type References interface {
	RemoveMediaReferences(ctx context.Context, id string) (int, error)
	ReplaceMediaReferences(ctx context.Context, oldID, newID string) (int, error)
}

// Config holds pipeline settings.
type Config struct {
	BaseURL        string   // URL prefix for backends without their own URLs
	KeepOriginal   bool     // Store the unprocessed upload beside the variants
	PrimaryVariant string   // Tier mirrored into the asset's primary fields
	Placeholder    bool     // Generate a blur placeholder for images
	PosterAt       float64  // Poster frame timestamp in seconds
	MaxUploadSize  int64    // Bytes
	AllowedTypes   []string // MIME allowlist; defaults to model.AllSupportedTypes
}

// Options configure a Repository.
type Options struct {
	Config     Config
	References References
	Logger     *slog.Logger
	Now        func() time.Time
}

// Repository manages media assets. Bytes go to the storage backend, records
// to the Store.
type Repository struct {
	backend   storage.Backend
	store     Store
	proc      Processor
	refs      References
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	strict    *bluemonday.Policy
	ugc       *bluemonday.Policy
	allowList map[string]bool
}

// NewRepository creates a media repository.
func NewRepository(backend storage.Backend, store Store, proc Processor, opts Options) *Repository {
	cfg := opts.Config
	if cfg.PrimaryVariant == "" {
		cfg.PrimaryVariant = DefaultPrimaryVariant
	}
	if cfg.PosterAt == 0 {
		cfg.PosterAt = DefaultPosterAt
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = model.AllSupportedTypes()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	allow := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allow[t] = true
	}
	return &Repository{
		backend:   backend,
		store:     store,
		proc:      proc,
		refs:      opts.References,
		cfg:       cfg,
		logger:    opts.Logger,
		now:       opts.Now,
		strict:    bluemonday.StrictPolicy(),
		ugc:       bluemonday.UGCPolicy(),
		allowList: allow,
	}
}

// SetReferences installs the reference rewriter after construction, for
// wiring where the scanner itself depends on other repositories.
func (r *Repository) SetReferences(refs References) {
	r.refs = refs
}

// Get returns the asset with id.
func (r *Repository) Get(ctx context.Context, id string) (*model.MediaAsset, error) {
	return r.store.Get(ctx, id)
}

// List returns every asset, newest first.
func (r *Repository) List(ctx context.Context) ([]*model.MediaAsset, error) {
	return r.store.List(ctx)
}

// FindByHash returns the newest asset whose raw bytes hash to hash.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*model.MediaAsset, error) {
	if f, ok := r.store.(HashFinder); ok {
		return f.FindByHash(ctx, hash)
	}
	assets, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Hash == hash {
			return a, nil
		}
	}
	return nil, fmt.Errorf("media with hash %s: %w", hash, model.ErrNotFound)
}

// fileURL returns the public URL of a stored file.
func (r *Repository) fileURL(key storage.Key) string {
	if u := storage.URL(r.backend, key); u != "" {
		return u
	}
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/" + key.FullPath()
}

func fileKey(path string) storage.Key {
	return storage.NewKey(storage.KindMedia, path)
}

// UpdateInput holds metadata changes. Nil fields are left unchanged.
type UpdateInput struct {
	Title         *string
	Alt           *string
	Caption       *string
	Description   *string
	Credit        *string
	Tags          []string // nil leaves tags unchanged; empty clears them
	ActiveVariant *string
}

// Update changes asset metadata. Switching ActiveVariant recomputes the
// primary path, URL, dimensions and size from the chosen representation.
func (r *Repository) Update(ctx context.Context, id string, in UpdateInput) (*model.MediaAsset, error) {
	asset, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.ActiveVariant != nil {
		name := *in.ActiveVariant
		if known(name) && representation(asset, name) == nil {
			// Tier never generated for this source: the current primary stays.
			r.logger.Warn("media variant not stored, keeping primary",
				"media_id", id, "variant", name, "active", asset.ActiveVariant)
		} else if err := setActive(asset, name); err != nil {
			return nil, err
		}
	}
	if in.Title != nil {
		asset.Title = r.strict.Sanitize(strings.TrimSpace(*in.Title))
	}
	if in.Alt != nil {
		asset.Alt = r.strict.Sanitize(strings.TrimSpace(*in.Alt))
	}
	if in.Credit != nil {
		asset.Credit = r.strict.Sanitize(strings.TrimSpace(*in.Credit))
	}
	if in.Caption != nil {
		asset.Caption = r.ugc.Sanitize(strings.TrimSpace(*in.Caption))
	}
	if in.Description != nil {
		asset.Description = r.ugc.Sanitize(strings.TrimSpace(*in.Description))
	}
	if in.Tags != nil {
		asset.Tags = cleanTags(in.Tags, r.strict)
	}
	asset.UpdatedAt = r.now().UTC()

	if err := r.store.Put(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func cleanTags(tags []string, p *bluemonday.Policy) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(p.Sanitize(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func known(name string) bool {
	return name == model.VariantOriginal || model.IsVariantName(name)
}

// representation returns the stored file for name, or nil.
func representation(asset *model.MediaAsset, name string) *model.MediaFile {
	if name == model.VariantOriginal {
		return asset.Original
	}
	return asset.Variants[name]
}

// setActive mirrors the named representation into the primary fields.
func setActive(asset *model.MediaAsset, name string) error {
	if !known(name) {
		verr := &model.ValidationError{Collection: "media"}
		verr.Add("activeVariant", "unknown variant %q", name)
		return verr
	}
	f := representation(asset, name)
	if f == nil {
		verr := &model.ValidationError{Collection: "media"}
		verr.Add("activeVariant", "variant %q was not generated for %s", name, asset.ID)
		return verr
	}
	asset.ActiveVariant = name
	asset.Path = f.Path
	asset.URL = f.URL
	asset.Width = f.Width
	asset.Height = f.Height
	asset.Size = f.Size
	if f.Mime != "" {
		asset.Mime = f.Mime
	}
	return nil
}

// DeleteResult reports a media deletion.
type DeleteResult struct {
	Success        bool
	UpdatedEntries int
}

// Delete strips the asset from every referencing entry, removes all of its
// stored files, then removes its record.
func (r *Repository) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	asset, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := 0
	if r.refs != nil {
		if updated, err = r.refs.RemoveMediaReferences(ctx, id); err != nil {
			return nil, fmt.Errorf("removing references to %s: %w", id, err)
		}
	}

	if err := r.purge(ctx, asset); err != nil {
		return &DeleteResult{UpdatedEntries: updated}, err
	}

	r.logger.Info("media deleted", "media_id", id, "updated_entries", updated)
	return &DeleteResult{Success: true, UpdatedEntries: updated}, nil
}

// purge deletes every stored representation, then the record. The record is
// kept when a file could not be removed so the delete can be retried.
func (r *Repository) purge(ctx context.Context, asset *model.MediaAsset) error {
	var errs []error
	for _, p := range asset.Files() {
		err := r.backend.Delete(ctx, fileKey(p), storage.WithMessage(fmt.Sprintf("Delete media file %s", p)))
		if err != nil && !storage.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("deleting files of %s: %w", asset.ID, err)
	}
	if err := r.store.Delete(ctx, asset.ID); err != nil && !storage.IsNotFound(err) {
		return err
	}
	return nil
}

// ReplaceResult reports a media replacement.
type ReplaceResult struct {
	Asset          *model.MediaAsset
	Degraded       []*model.ProcessingError
	UpdatedEntries int
}

// Replace uploads new bytes as a new asset, points every reference to oldID
// at it, and removes the old asset.
func (r *Repository) Replace(ctx context.Context, oldID string, in UploadInput) (*ReplaceResult, error) {
	old, err := r.store.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	up, err := r.Upload(ctx, in)
	if err != nil {
		return nil, err
	}

	updated := 0
	if r.refs != nil {
		if updated, err = r.refs.ReplaceMediaReferences(ctx, oldID, up.Asset.ID); err != nil {
			// Nothing points at the new asset yet.
			err = fmt.Errorf("replacing references to %s: %w", oldID, err)
			return nil, errors.Join(err, r.purge(ctx, up.Asset))
		}
	}
	if err := r.purge(ctx, old); err != nil {
		return nil, err
	}

	r.logger.Info("media replaced", "media_id", oldID, "new_media_id", up.Asset.ID, "updated_entries", updated)
	return &ReplaceResult{Asset: up.Asset, Degraded: up.Degraded, UpdatedEntries: updated}, nil
}
