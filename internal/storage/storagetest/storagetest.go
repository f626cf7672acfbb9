// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Run exercises the backend contract against a fresh backend per subtest.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Helper()

	t.Run("read missing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Read(context.Background(), storage.NewKey(storage.KindEntries, "posts", "missing.json"))
		assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
	})

	t.Run("write read overwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		key := storage.NewKey(storage.KindEntries, "posts", "hello.json")

		require.NoError(t, b.Write(ctx, key, []byte(`{"v":1}`), storage.WithMessage("Create hello")))
		got, err := b.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(got))

		require.NoError(t, b.Write(ctx, key, []byte(`{"v":2}`)))
		got, err = b.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(got))
	})

	t.Run("exists and delete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		key := storage.NewKey(storage.KindMedia, "records", "m1.json")

		ok, err := b.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Write(ctx, key, []byte("{}")))
		ok, err = b.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, b.Delete(ctx, key, storage.WithMessage("Delete m1")))
		ok, err = b.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		err = b.Delete(ctx, key)
		assert.True(t, errors.Is(err, model.ErrNotFound), "second delete: %v", err)
	})

	t.Run("list", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		names, err := b.List(ctx, storage.NewKey(storage.KindEntries, "nothing-here"))
		require.NoError(t, err)
		assert.Empty(t, names)

		for _, p := range []string{"posts/a.json", "posts/b.json", "pages/about.json"} {
			require.NoError(t, b.Write(ctx, storage.NewKey(storage.KindEntries, p), []byte("{}")))
		}
		// Same path under another kind must not leak into the listing.
		require.NoError(t, b.Write(ctx, storage.NewKey(storage.KindMedia, "posts/c.json"), []byte("{}")))

		names, err = b.List(ctx, storage.NewKey(storage.KindEntries, "posts"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.json", "b.json"}, names)

		names, err = b.List(ctx, storage.NewKey(storage.KindEntries))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"pages", "posts"}, names)
	})

	t.Run("ensure dir", func(t *testing.T) {
		b := newBackend(t)
		assert.NoError(t, b.EnsureDir(context.Background(), storage.NewKey(storage.KindEntries, "posts")))
	})

	t.Run("rename", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		from := storage.NewKey(storage.KindEntries, "posts", "a.json")
		to := storage.NewKey(storage.KindEntries, "posts", "b.json")
		taken := storage.NewKey(storage.KindEntries, "posts", "c.json")

		require.NoError(t, b.Write(ctx, from, []byte("old")))
		require.NoError(t, b.Write(ctx, taken, []byte("other")))

		err := storage.Rename(ctx, b, from, taken, []byte("new"))
		assert.True(t, errors.Is(err, model.ErrDuplicateKey), "got %v", err)
		got, err := b.Read(ctx, taken)
		require.NoError(t, err)
		assert.Equal(t, "other", string(got), "occupied target must be untouched")
		got, err = b.Read(ctx, from)
		require.NoError(t, err)
		assert.Equal(t, "old", string(got), "source must be untouched")

		require.NoError(t, storage.Rename(ctx, b, from, to, []byte("new")))
		ok, err := b.Exists(ctx, from)
		require.NoError(t, err)
		assert.False(t, ok)
		got, err = b.Read(ctx, to)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})
}
