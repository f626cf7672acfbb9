// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/olegiv/ocms-content/internal/cache"
)

// Cached is a read-through cache in front of a backend. Writes and deletes made
// through it invalidate the affected key; writes made by other processes are
// visible once the TTL expires, unless the cache is shared (Redis).
type Cached struct {
	inner  Backend
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps inner with c. A zero ttl uses the cache default.
func NewCached(inner Backend, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Unwrap returns the decorated backend.
func (c *Cached) Unwrap() Backend {
	return c.inner
}

// Name implements Backend.
func (c *Cached) Name() string {
	return c.inner.Name() + "+cache"
}

func cacheKey(key Key) string {
	return "blob:" + key.FullPath()
}

// Read implements Backend.
func (c *Cached) Read(ctx context.Context, key Key) ([]byte, error) {
	if data, err := c.cache.Get(ctx, cacheKey(key)); err == nil {
		return data, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("cache read failed", "key", key.FullPath(), "error", err)
	}

	data, err := c.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cacheKey(key), data, c.ttl); err != nil {
		c.logger.Debug("cache write failed", "key", key.FullPath(), "error", err)
	}
	return data, nil
}

// ReadRevision bypasses the cache when the inner backend tracks revisions, so
// the token always matches the content. Other backends read through the cache.
func (c *Cached) ReadRevision(ctx context.Context, key Key) ([]byte, string, error) {
	if tracksRevisions(c.inner) {
		return ReadRevision(ctx, c.inner, key)
	}
	data, err := c.Read(ctx, key)
	return data, "", err
}

func tracksRevisions(b Backend) bool {
	for cur := b; cur != nil; {
		if _, ok := cur.(Revisioned); ok {
			return true
		}
		u, ok := cur.(Unwrapper)
		if !ok {
			return false
		}
		cur = u.Unwrap()
	}
	return false
}

// Write implements Backend.
func (c *Cached) Write(ctx context.Context, key Key, content []byte, opts ...WriteOption) error {
	defer c.invalidate(ctx, key)
	return c.inner.Write(ctx, key, content, opts...)
}

// Delete implements Backend.
func (c *Cached) Delete(ctx context.Context, key Key, opts ...WriteOption) error {
	defer c.invalidate(ctx, key)
	return c.inner.Delete(ctx, key, opts...)
}

// Exists implements Backend. Cached content counts as existing.
func (c *Cached) Exists(ctx context.Context, key Key) (bool, error) {
	if ok, err := c.cache.Has(ctx, cacheKey(key)); err == nil && ok {
		return true, nil
	}
	return c.inner.Exists(ctx, key)
}

// List implements Backend. Listings are never cached.
func (c *Cached) List(ctx context.Context, dir Key) ([]string, error) {
	return c.inner.List(ctx, dir)
}

// EnsureDir implements Backend.
func (c *Cached) EnsureDir(ctx context.Context, dir Key) error {
	return c.inner.EnsureDir(ctx, dir)
}

// Move implements Mover, delegating to the inner backend's rename strategy.
func (c *Cached) Move(ctx context.Context, from, to Key, content []byte, opts ...WriteOption) error {
	defer c.invalidate(ctx, from)
	defer c.invalidate(ctx, to)
	return Rename(ctx, c.inner, from, to, content, opts...)
}

func (c *Cached) invalidate(ctx context.Context, key Key) {
	if err := c.cache.Delete(ctx, cacheKey(key)); err != nil {
		c.logger.Warn("cache invalidation failed", "key", key.FullPath(), "error", err)
	}
}

var (
	_ Backend    = (*Cached)(nil)
	_ Revisioned = (*Cached)(nil)
	_ Mover      = (*Cached)(nil)
	_ Unwrapper  = (*Cached)(nil)
)
