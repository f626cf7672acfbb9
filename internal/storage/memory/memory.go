// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package memory provides an in-process storage backend used by tests and
// ephemeral setups.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

type object struct {
	data     []byte
	revision int64
}

// Backend is an in-memory implementation of storage.Backend. It tracks a
// revision per key so conflict handling can be exercised without a server.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	nextRev int64
}

// New creates a new in-memory storage backend.
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "memory"
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, key storage.Key) ([]byte, error) {
	data, _, err := b.ReadRevision(ctx, key)
	return data, err
}

// ReadRevision implements storage.Revisioned.
func (b *Backend) ReadRevision(_ context.Context, key storage.Key) ([]byte, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key.FullPath()]
	if !ok {
		return nil, "", storage.NotFound(key)
	}
	return slices.Clone(obj.data), strconv.FormatInt(obj.revision, 10), nil
}

// Write implements storage.Backend.
func (b *Backend) Write(_ context.Context, key storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkRevision(key, o.Revision); err != nil {
		return err
	}
	b.put(key, content)
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(_ context.Context, key storage.Key, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[key.FullPath()]; !ok {
		return storage.NotFound(key)
	}
	if err := b.checkRevision(key, o.Revision); err != nil {
		return err
	}
	delete(b.objects, key.FullPath())
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(_ context.Context, key storage.Key) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key.FullPath()]
	return ok, nil
}

// List implements storage.Backend.
func (b *Backend) List(_ context.Context, dir storage.Key) ([]string, error) {
	prefix := dir.FullPath() + "/"

	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	for p := range b.objects {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// EnsureDir implements storage.Backend. Directories are implicit.
func (b *Backend) EnsureDir(context.Context, storage.Key) error {
	return nil
}

// Move implements storage.Mover under a single lock.
func (b *Backend) Move(_ context.Context, from, to storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[from.FullPath()]; !ok {
		return storage.NotFound(from)
	}
	if _, ok := b.objects[to.FullPath()]; ok {
		return fmt.Errorf("move to %s: %w", to, model.ErrDuplicateKey)
	}
	if err := b.checkRevision(from, o.Revision); err != nil {
		return err
	}
	delete(b.objects, from.FullPath())
	b.put(to, content)
	return nil
}

// Len returns the number of stored items.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

func (b *Backend) put(key storage.Key, content []byte) {
	b.nextRev++
	b.objects[key.FullPath()] = object{data: slices.Clone(content), revision: b.nextRev}
}

// checkRevision must be called with the write lock held.
func (b *Backend) checkRevision(key storage.Key, rev string) error {
	if rev == "" {
		return nil
	}
	obj, ok := b.objects[key.FullPath()]
	if !ok || strconv.FormatInt(obj.revision, 10) != rev {
		return fmt.Errorf("%s: %w", key, model.ErrConflict)
	}
	return nil
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Revisioned = (*Backend)(nil)
	_ storage.Mover      = (*Backend)(nil)
)
