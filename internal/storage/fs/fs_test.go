// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/storage/storagetest"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Root: t.TempDir(), BaseURL: "/uploads/"})
	require.NoError(t, err)
	return b
}

func TestBackendContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend { return newBackend(t) })
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestWriteCreatesParents(t *testing.T) {
	b := newBackend(t)
	key := storage.NewKey(storage.KindMedia, "files", "thumb", "id1", "a.jpg")

	require.NoError(t, b.Write(context.Background(), key, []byte("jpeg")))

	data, err := os.ReadFile(filepath.Join(b.Root(), "media", "files", "thumb", "id1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestDeletePrunesEmptyDirectories(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	key := storage.NewKey(storage.KindMedia, "files", "thumb", "id1", "a.jpg")

	require.NoError(t, b.Write(ctx, key, []byte("jpeg")))
	require.NoError(t, b.Delete(ctx, key))

	_, err := os.Stat(filepath.Join(b.Root(), "media", "files", "thumb", "id1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b.Root())
	assert.NoError(t, err, "root must survive pruning")
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	b := newBackend(t)
	key := storage.Key{Kind: storage.KindEntries, Path: "../../etc/passwd"}

	require.NoError(t, b.Write(context.Background(), storage.NewKey(key.Kind, key.Path), []byte("x")))
	_, err := os.Stat(filepath.Join(b.Root(), "entries", "etc", "passwd"))
	assert.NoError(t, err, "cleaned key stays under the kind directory")
}

func TestURL(t *testing.T) {
	b := newBackend(t)
	assert.Equal(t, "/uploads/media/files/a.jpg", b.URL(storage.NewKey(storage.KindMedia, "files", "a.jpg")))

	plain, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, plain.URL(storage.NewKey(storage.KindMedia, "a.jpg")))
}
