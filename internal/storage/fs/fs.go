// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package fs implements storage.Backend on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/util"
)

// Config options for the filesystem backend.
type Config struct {
	Root    string // Base directory; created if missing
	BaseURL string // Optional public URL prefix the root is served under
}

// Backend maps keys to files under a root directory. There is no locking:
// concurrent writers to the same key race and the last rename wins.
type Backend struct {
	root    string
	baseURL string
}

// New creates a filesystem backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Root == "" {
		return nil, errors.New("root directory is required")
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	return &Backend{root: abs, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "fs"
}

// Root returns the absolute root directory.
func (b *Backend) Root() string {
	return b.root
}

func (b *Backend) path(key storage.Key) (string, error) {
	p, err := util.SafeJoinPath(b.root, filepath.FromSlash(key.FullPath()))
	if err != nil {
		return "", &model.StorageError{Backend: b.Name(), Op: "resolve", Key: key.FullPath(), Err: err}
	}
	return p, nil
}

// Read implements storage.Backend.
func (b *Backend) Read(_ context.Context, key storage.Key) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.NotFound(key)
		}
		return nil, &model.StorageError{Backend: b.Name(), Op: "read", Key: key.FullPath(), Err: err}
	}
	return data, nil
}

// Write implements storage.Backend. Parent directories are created and the
// file is replaced through a rename so readers never see partial content.
func (b *Backend) Write(_ context.Context, key storage.Key, content []byte, _ ...storage.WriteOption) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(p, content); err != nil {
		return &model.StorageError{Backend: b.Name(), Op: "write", Key: key.FullPath(), Err: err}
	}
	return nil
}

// Delete implements storage.Backend. Empty parent directories are pruned.
func (b *Backend) Delete(_ context.Context, key storage.Key, _ ...storage.WriteOption) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.NotFound(key)
		}
		return &model.StorageError{Backend: b.Name(), Op: "delete", Key: key.FullPath(), Err: err}
	}
	b.cleanupEmptyDirectories(filepath.Dir(p))
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(_ context.Context, key storage.Key) (bool, error) {
	p, err := b.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &model.StorageError{Backend: b.Name(), Op: "stat", Key: key.FullPath(), Err: err}
	}
	return !info.IsDir(), nil
}

// List implements storage.Backend.
func (b *Backend) List(_ context.Context, dir storage.Key) ([]string, error) {
	p, err := b.path(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &model.StorageError{Backend: b.Name(), Op: "list", Key: dir.FullPath(), Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// EnsureDir implements storage.Backend.
func (b *Backend) EnsureDir(_ context.Context, dir storage.Key) error {
	p, err := b.path(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return &model.StorageError{Backend: b.Name(), Op: "mkdir", Key: dir.FullPath(), Err: err}
	}
	return nil
}

// Move implements storage.Mover. The old file is renamed into place first, so
// one of the two paths always resolves, then its content is replaced.
func (b *Backend) Move(_ context.Context, from, to storage.Key, content []byte, _ ...storage.WriteOption) error {
	src, err := b.path(from)
	if err != nil {
		return err
	}
	dst, err := b.path(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("move to %s: %w", to, model.ErrDuplicateKey)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &model.StorageError{Backend: b.Name(), Op: "move", Key: to.FullPath(), Err: err}
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.NotFound(from)
		}
		return &model.StorageError{Backend: b.Name(), Op: "move", Key: from.FullPath(), Err: err}
	}
	if err := writeFileAtomic(dst, content); err != nil {
		return &model.StorageError{Backend: b.Name(), Op: "write", Key: to.FullPath(), Err: err}
	}
	b.cleanupEmptyDirectories(filepath.Dir(src))
	return nil
}

// URL implements storage.Linker when a base URL is configured.
func (b *Backend) URL(key storage.Key) string {
	if b.baseURL == "" {
		return ""
	}
	return b.baseURL + "/" + key.FullPath()
}

// cleanupEmptyDirectories removes empty directories up to the root.
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.root || !strings.HasPrefix(dir, b.root) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing file: %w", err)
	}
	return nil
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Mover   = (*Backend)(nil)
	_ storage.Linker  = (*Backend)(nil)
)
