// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package app wires configuration into backends, caches and repositories.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olegiv/ocms-content/internal/cache"
	"github.com/olegiv/ocms-content/internal/config"
	"github.com/olegiv/ocms-content/internal/entry"
	"github.com/olegiv/ocms-content/internal/imaging"
	"github.com/olegiv/ocms-content/internal/media"
	"github.com/olegiv/ocms-content/internal/references"
	"github.com/olegiv/ocms-content/internal/scheduler"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/storage/docstore"
	"github.com/olegiv/ocms-content/internal/storage/fs"
	"github.com/olegiv/ocms-content/internal/storage/remote"
	"github.com/olegiv/ocms-content/internal/storage/s3"
)

// App holds the wired components. Everything is constructed explicitly in
// Open; there are no package-level singletons.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Backend    storage.Backend // Entries (and media unless OCMS_MEDIA_BACKEND is set)
	Media      *media.Repository
	Entries    *entry.Repository
	References *references.Scanner
	Cache      cache.Cache // nil when caching is disabled
	DB         *sql.DB     // nil unless a document database is in use

	closers []func() error
}

// Open builds the application from cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	if cfg.NeedsDB() {
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
	}

	if cfg.CacheEnabled() {
		cacheCfg := cache.Config{
			Type:             cache.TypeMemory,
			RedisURL:         cfg.RedisURL,
			Prefix:           cfg.CachePrefix,
			DefaultTTL:       cfg.CacheDuration(),
			MaxSize:          cfg.CacheMaxSize,
			CleanupInterval:  time.Minute,
			FallbackToMemory: true,
		}
		if cfg.UseRedisCache() {
			cacheCfg.Type = cache.TypeRedis
		}
		c, fallback, err := cache.New(cacheCfg, a.Logger)
		if err != nil {
			return fmt.Errorf("creating cache: %w", err)
		}
		a.Cache = c
		a.closers = append(a.closers, c.Close)
		switch {
		case cacheCfg.Type == cache.TypeRedis && !fallback:
			a.Logger.Info("read cache initialized", "backend", "redis", "url", cache.SanitizeRedisURL(cfg.RedisURL))
		case fallback:
			a.Logger.Warn("read cache initialized", "backend", "memory", "note", "Redis unavailable, using fallback")
		default:
			a.Logger.Info("read cache initialized", "backend", "memory")
		}
	}

	backend, err := a.backend(ctx, cfg.StorageBackend)
	if err != nil {
		return err
	}
	a.Backend = backend

	mediaBackend := backend
	if name := cfg.MediaBackendName(); name != cfg.StorageBackend {
		if mediaBackend, err = a.backend(ctx, name); err != nil {
			return err
		}
	}

	schemas := entry.DefaultRegistry()
	if cfg.SchemaFile != "" {
		if schemas, err = entry.LoadRegistry(cfg.SchemaFile); err != nil {
			return err
		}
	}
	a.Entries = entry.NewRepository(backend, entry.Options{Schemas: schemas, Logger: a.Logger})
	a.References = references.NewScanner(a.Entries, a.Logger)

	var store media.Store = media.NewFileStore(backend)
	if cfg.MediaStore == config.MediaStoreRecord {
		d, _ := docstore.ParseDialect(cfg.DBDriver)
		store = docstore.NewMediaRecords(a.DB, d)
	}
	proc := imaging.NewProcessor(imaging.Options{FFprobePath: cfg.FFprobePath, FFmpegPath: cfg.FFmpegPath})
	a.Media = media.NewRepository(mediaBackend, store, proc, media.Options{
		Config: media.Config{
			BaseURL:        cfg.MediaBaseURL,
			KeepOriginal:   cfg.MediaKeepOriginal,
			PrimaryVariant: cfg.MediaPrimaryVariant,
			Placeholder:    cfg.MediaPlaceholder,
			PosterAt:       cfg.MediaPosterAt,
			MaxUploadSize:  cfg.MediaMaxUpload,
		},
		References: a.References,
		Logger:     a.Logger,
	})

	a.Logger.Info("content repository ready",
		"backend", cfg.StorageBackend,
		"media_backend", cfg.MediaBackendName(),
		"media_store", cfg.MediaStore,
		"cache", a.Cache != nil)
	return nil
}

// backend opens the named storage backend, wrapped in the read cache when
// one is configured.
func (a *App) backend(ctx context.Context, name string) (storage.Backend, error) {
	cfg := a.Config
	var b storage.Backend

	switch name {
	case config.BackendFS:
		fb, err := fs.New(fs.Config{Root: cfg.StorageRoot, BaseURL: cfg.MediaBaseURL})
		if err != nil {
			return nil, fmt.Errorf("opening fs backend: %w", err)
		}
		b = fb
	case config.BackendRemote:
		rb, err := remote.New(remote.Config{
			APIURL:       cfg.RemoteAPIURL,
			Owner:        cfg.RemoteOwner,
			Repo:         cfg.RemoteRepo,
			Branch:       cfg.RemoteBranch,
			Token:        cfg.RemoteToken,
			Root:         cfg.RemoteRoot,
			RateLimit:    cfg.RemoteRateLimit,
			Timeout:      cfg.RemoteTimeout,
			AllowPrivate: cfg.RemoteAllowPrivate,
			Logger:       a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening remote backend: %w", err)
		}
		b = rb
	case config.BackendDocstore:
		d, err := docstore.ParseDialect(cfg.DBDriver)
		if err != nil {
			return nil, err
		}
		b = docstore.New(a.DB, d)
	case config.BackendS3:
		sb, err := s3.New(ctx, s3.Config{
			Region:                 cfg.S3Region,
			Bucket:                 cfg.S3Bucket,
			AccessKeyID:            cfg.S3AccessKeyID,
			SecretAccessKey:        cfg.S3SecretAccessKey,
			Endpoint:               cfg.S3Endpoint,
			UsePathStyle:           cfg.S3UsePathStyle,
			Prefix:                 cfg.S3Prefix,
			PublicURL:              cfg.S3PublicURL,
			CreateBucketIfNotExist: cfg.S3CreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("opening s3 backend: %w", err)
		}
		b = sb
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}

	if a.Cache != nil {
		b = storage.NewCached(b, a.Cache, cfg.CacheDuration(), a.Logger)
	}
	return b, nil
}

// openDB opens and migrates the document database.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	d, err := docstore.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	if d == docstore.SQLite && !strings.HasPrefix(cfg.DBDSN, "file:") && cfg.DBDSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := docstore.Open(ctx, docstore.Config{Dialect: d, DSN: cfg.DBDSN})
	if err != nil {
		return nil, err
	}
	if err := docstore.Migrate(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Scheduler returns a scheduled-publishing job bound to the entry repository.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(a.Entries, a.Config.Schedule, a.Logger)
}

// Reset drops cached backend reads, so tests and maintenance tools observe
// changes made behind the application's back.
func (a *App) Reset(ctx context.Context) error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Clear(ctx)
}

// Close releases the cache and database in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
