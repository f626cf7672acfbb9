// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-content/internal/app"
	"github.com/olegiv/ocms-content/internal/config"
	"github.com/olegiv/ocms-content/internal/entry"
	"github.com/olegiv/ocms-content/internal/media"
	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/testutil"
)

func newCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StorageBackend:      config.BackendFS,
		StorageRoot:         filepath.Join(dir, "content"),
		MediaStore:          config.MediaStoreFile,
		MediaBaseURL:        "/content",
		MediaPrimaryVariant: model.VariantDisplay,
		MediaMaxUpload:      media.DefaultMaxUploadSize,
		Schedule:            "* * * * *",
	}
	a, err := app.Open(context.Background(), cfg, testutil.TestLoggerSilent())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var out bytes.Buffer
	return &cli{app: a, out: &out}, &out
}

func TestDispatch_Usage(t *testing.T) {
	c, _ := newCLI(t)
	ctx := context.Background()

	err := dispatch(ctx, c, []string{"nope"})
	assert.EqualError(t, err, `unknown command "nope"`)

	err = dispatch(ctx, c, []string{"publish", "posts"})
	assert.EqualError(t, err, "usage: publish <collection> <slug>")

	err = dispatch(ctx, c, []string{"entries", "-limit", "x", "posts"})
	assert.ErrorContains(t, err, "usage: entries")
}

func TestEntriesAndPublish(t *testing.T) {
	c, out := newCLI(t)
	ctx := context.Background()

	_, err := c.app.Entries.Create(ctx, "posts", entry.CreateInput{Data: map[string]any{"title": "Hello World"}})
	require.NoError(t, err)

	require.NoError(t, dispatch(ctx, c, []string{"publish", "posts", "hello-world"}))
	assert.Contains(t, out.String(), "published posts/hello-world")

	out.Reset()
	require.NoError(t, dispatch(ctx, c, []string{"entries", "-status", "published", "posts"}))
	assert.Regexp(t, regexp.MustCompile(`hello-world\s+published\s+false`), out.String())
	assert.Contains(t, out.String(), "1 of 1")

	out.Reset()
	require.NoError(t, dispatch(ctx, c, []string{"unpublish", "posts", "hello-world"}))
	e, err := c.app.Entries.Get(ctx, "posts", "hello-world")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, e.Status)

	out.Reset()
	require.NoError(t, dispatch(ctx, c, []string{"collections"}))
	assert.Contains(t, out.String(), "posts\n")

	err = dispatch(ctx, c, []string{"publish", "posts", "missing"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUploadAndDeleteMedia(t *testing.T) {
	c, out := newCLI(t)
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(file, testutil.TestImage(t, 120, 80, imaging.PNG), 0o600))

	require.NoError(t, dispatch(ctx, c, []string{"upload", "-alt", "A photo", file}))
	m := regexp.MustCompile(`id:\s+(\S+)`).FindStringSubmatch(out.String())
	require.Len(t, m, 2)
	id := m[1]
	assert.Contains(t, out.String(), "dims:  120x80")

	asset, err := c.app.Media.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A photo", asset.Alt)
	assert.Equal(t, "photo.png", asset.OriginalName)

	out.Reset()
	require.NoError(t, dispatch(ctx, c, []string{"media"}))
	assert.Contains(t, out.String(), id)

	_, err = c.app.Entries.Create(ctx, "posts", entry.CreateInput{Data: map[string]any{"title": "P", "cover": id}})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, dispatch(ctx, c, []string{"delete-media", id}))
	assert.Contains(t, out.String(), "updated 1 entries")
}

func TestPublishDue(t *testing.T) {
	c, out := newCLI(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := c.app.Entries.Create(ctx, "posts", entry.CreateInput{
		Data:        map[string]any{"title": "Due"},
		ScheduledAt: &past,
	})
	require.NoError(t, err)

	require.NoError(t, dispatch(ctx, c, []string{"publish-due"}))
	assert.Equal(t, "published 1 entries\n", out.String())
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	c, _ := newCLI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, dispatch(ctx, c, []string{"scheduler"}))
}
