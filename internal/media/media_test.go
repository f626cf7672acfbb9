// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package media

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ocmsimaging "github.com/olegiv/ocms-content/internal/imaging"
	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/storage/fs"
	"github.com/olegiv/ocms-content/internal/storage/memory"
	"github.com/olegiv/ocms-content/internal/testutil"
)

// fakeProcessor delegates to the real processor unless a hook is set.
type fakeProcessor struct {
	real *ocmsimaging.Processor

	probeImage   func([]byte) (ocmsimaging.ImageInfo, error)
	resize       func([]byte, int, int, string) ([]byte, ocmsimaging.ImageInfo, error)
	probeVideo   func(context.Context, []byte) (ocmsimaging.VideoInfo, error)
	extractFrame func(context.Context, []byte, float64) ([]byte, error)
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{real: ocmsimaging.NewProcessor(ocmsimaging.Options{})}
}

func (f *fakeProcessor) ProbeImage(data []byte) (ocmsimaging.ImageInfo, error) {
	if f.probeImage != nil {
		return f.probeImage(data)
	}
	return f.real.ProbeImage(data)
}

func (f *fakeProcessor) ResizeImage(data []byte, maxEdge, quality int, format string) ([]byte, ocmsimaging.ImageInfo, error) {
	if f.resize != nil {
		return f.resize(data, maxEdge, quality, format)
	}
	return f.real.ResizeImage(data, maxEdge, quality, format)
}

func (f *fakeProcessor) Placeholder(data []byte) (string, error) {
	return f.real.Placeholder(data)
}

func (f *fakeProcessor) ProbeVideo(ctx context.Context, data []byte) (ocmsimaging.VideoInfo, error) {
	if f.probeVideo != nil {
		return f.probeVideo(ctx, data)
	}
	return ocmsimaging.VideoInfo{}, model.ErrUnavailable
}

func (f *fakeProcessor) ExtractFrame(ctx context.Context, data []byte, ts float64) ([]byte, error) {
	if f.extractFrame != nil {
		return f.extractFrame(ctx, data, ts)
	}
	return nil, model.ErrUnavailable
}

// fakeRefs records reference rewrites.
type fakeRefs struct {
	removed  []string
	replaced [][2]string
	count    int
	err      error
}

func (f *fakeRefs) RemoveMediaReferences(_ context.Context, id string) (int, error) {
	f.removed = append(f.removed, id)
	return f.count, f.err
}

func (f *fakeRefs) ReplaceMediaReferences(_ context.Context, oldID, newID string) (int, error) {
	f.replaced = append(f.replaced, [2]string{oldID, newID})
	return f.count, f.err
}

func newRepo(t *testing.T, cfg Config, proc Processor) (*Repository, *memory.Backend) {
	t.Helper()
	b := memory.New()
	if proc == nil {
		proc = newFakeProcessor()
	}
	cfg.BaseURL = "https://cdn.example.com"
	return NewRepository(b, NewFileStore(b), proc, Options{Config: cfg, Logger: testutil.TestLoggerSilent()}), b
}

func jpeg(t *testing.T, w, h int) []byte {
	return testutil.TestImage(t, w, h, imaging.JPEG)
}

func TestUpload_SmallImageIsNotUpscaled(t *testing.T) {
	r, _ := newRepo(t, Config{}, nil)
	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 400, 300), OriginalName: "Holiday Photo.JPG", Mime: "image/jpeg"})
	require.NoError(t, err)
	a := res.Asset

	assert.Empty(t, res.Degraded)
	assert.Equal(t, []string{model.VariantThumb}, keys(a.Variants))
	assert.Equal(t, 320, a.Variants[model.VariantThumb].Width)
	assert.Equal(t, 240, a.Variants[model.VariantThumb].Height)

	// display was not generated, so the original is primary.
	require.NotNil(t, a.Original)
	assert.Equal(t, model.VariantOriginal, a.ActiveVariant)
	assert.Equal(t, 400, a.Width)
	assert.Equal(t, a.Original.Path, a.Path)
	assert.True(t, strings.HasPrefix(a.Filename, "holiday-photo-"), a.Filename)
	assert.True(t, strings.HasSuffix(a.Filename, ".jpg"), a.Filename)
	assert.Equal(t, "holiday-photo", a.Slug)
	assert.Equal(t, "https://cdn.example.com/media/"+a.Path, a.URL)
}

func TestUpload_LargeImageTiers(t *testing.T) {
	r, b := newRepo(t, Config{}, nil)
	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 1400, 700), OriginalName: "wide.jpg"})
	require.NoError(t, err)
	a := res.Asset

	assert.ElementsMatch(t, []string{model.VariantDisplay, model.VariantMedium, model.VariantThumb}, keys(a.Variants))
	for name, v := range a.Variants {
		cfg, _ := model.VariantConfig(name)
		assert.LessOrEqual(t, max(v.Width, v.Height), cfg.MaxEdge, name)
		assert.True(t, strings.HasPrefix(v.Path, "files/"+name+"/"+a.ID+"/"), v.Path)
	}
	assert.Equal(t, model.VariantDisplay, a.ActiveVariant)
	assert.Equal(t, 1280, a.Width)
	assert.Equal(t, 640, a.Height)
	assert.Nil(t, a.Original, "original is discarded unless kept")
	assert.Equal(t, model.MimeTypeJPEG, a.Mime)

	// Three variants plus the record.
	assert.Equal(t, 4, b.Len())
}

func TestUpload_KeepOriginalAndPlaceholder(t *testing.T) {
	r, _ := newRepo(t, Config{KeepOriginal: true, Placeholder: true}, nil)
	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 900, 900), OriginalName: "sq.jpg"})
	require.NoError(t, err)
	a := res.Asset

	require.NotNil(t, a.Original)
	assert.Equal(t, 900, a.Original.Width)
	assert.Equal(t, model.VariantMedium, keys(a.Variants)[0])
	// display is 1280, so the 900px source keeps the original as primary.
	assert.Equal(t, model.VariantOriginal, a.ActiveVariant)
	assert.True(t, strings.HasPrefix(a.BlurDataURL, "data:image/jpeg;base64,"))
}

func TestUpload_PrimaryVariantConfig(t *testing.T) {
	r, _ := newRepo(t, Config{PrimaryVariant: model.VariantThumb}, nil)
	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 500, 250), OriginalName: "x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, model.VariantThumb, res.Asset.ActiveVariant)
	assert.Equal(t, 320, res.Asset.Width)
}

func TestUpload_HashIsStable(t *testing.T) {
	r, _ := newRepo(t, Config{}, nil)
	ctx := context.Background()
	data := jpeg(t, 100, 100)

	first, err := r.Upload(ctx, UploadInput{Data: data, OriginalName: "a.jpg"})
	require.NoError(t, err)
	second, err := r.Upload(ctx, UploadInput{Data: data, OriginalName: "b.jpg"})
	require.NoError(t, err)

	assert.Equal(t, first.Asset.Hash, second.Asset.Hash)
	assert.Len(t, first.Asset.Hash, 64)
	assert.NotEqual(t, first.Asset.ID, second.Asset.ID)

	found, err := r.FindByHash(ctx, first.Asset.Hash)
	require.NoError(t, err)
	assert.Contains(t, []string{first.Asset.ID, second.Asset.ID}, found.ID)

	_, err = r.FindByHash(ctx, "0000")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpload_Guards(t *testing.T) {
	r, _ := newRepo(t, Config{MaxUploadSize: 1024}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   UploadInput
	}{
		{"empty", UploadInput{OriginalName: "a.jpg"}},
		{"too large", UploadInput{Data: make([]byte, 2048), OriginalName: "a.bin"}},
		{"disallowed type", UploadInput{Data: []byte("hello world"), OriginalName: "a.txt"}},
		{"declared disallowed type", UploadInput{Data: []byte{1, 2, 3}, OriginalName: "a.exe", Mime: "application/x-msdownload"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Upload(ctx, tt.in)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestUpload_DetectsMimeAndStoresDocumentsRaw(t *testing.T) {
	r, _ := newRepo(t, Config{}, nil)
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
	res, err := r.Upload(context.Background(), UploadInput{Data: pdf, OriginalName: "Annual Report 2025.pdf", Mime: "application/octet-stream"})
	require.NoError(t, err)

	a := res.Asset
	assert.Equal(t, model.MimeTypePDF, a.Mime)
	assert.Empty(t, a.Variants)
	require.NotNil(t, a.Original)
	assert.Equal(t, int64(len(pdf)), a.Size)
	assert.Equal(t, model.VariantOriginal, a.ActiveVariant)
}

func TestUpload_ResizeFailureDegrades(t *testing.T) {
	proc := newFakeProcessor()
	proc.resize = func([]byte, int, int, string) ([]byte, ocmsimaging.ImageInfo, error) {
		return nil, ocmsimaging.ImageInfo{}, errors.New("decoder exploded")
	}
	r, _ := newRepo(t, Config{}, proc)

	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 800, 600), OriginalName: "a.jpg"})
	require.NoError(t, err)
	require.Len(t, res.Degraded, 2) // medium and thumb
	assert.Equal(t, "resize:medium", res.Degraded[0].Step)
	assert.Equal(t, model.VariantOriginal, res.Asset.ActiveVariant)
	assert.Equal(t, 800, res.Asset.Width)
}

func TestUpload_ProbeFailureStoresRaw(t *testing.T) {
	proc := newFakeProcessor()
	proc.probeImage = func([]byte) (ocmsimaging.ImageInfo, error) {
		return ocmsimaging.ImageInfo{}, errors.New("truncated")
	}
	r, _ := newRepo(t, Config{}, proc)

	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 800, 600), OriginalName: "a.jpg"})
	require.NoError(t, err)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, StepProbe, res.Degraded[0].Step)
	assert.Empty(t, res.Asset.Variants)
	assert.NotNil(t, res.Asset.Original)
}

func TestUpload_VideoWithoutTools(t *testing.T) {
	r, b := newRepo(t, Config{}, nil)
	res, err := r.Upload(context.Background(), UploadInput{Data: []byte("not really a video"), OriginalName: "clip.mp4", Mime: "video/mp4"})
	require.NoError(t, err)

	a := res.Asset
	assert.Nil(t, a.Poster)
	assert.Nil(t, a.Duration)
	require.NotNil(t, a.Original)
	require.Len(t, res.Degraded, 1)
	assert.ErrorIs(t, res.Degraded[0], model.ErrUnavailable)

	// The file and the record are stored.
	assert.Equal(t, 2, b.Len())
	stored, err := r.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MimeTypeMP4, stored.Mime)
}

func TestUpload_VideoPosterClamped(t *testing.T) {
	proc := newFakeProcessor()
	proc.probeVideo = func(context.Context, []byte) (ocmsimaging.VideoInfo, error) {
		return ocmsimaging.VideoInfo{Width: 640, Height: 360, Duration: 0.5}, nil
	}
	var gotTS float64
	frame := jpeg(t, 64, 36)
	proc.extractFrame = func(_ context.Context, _ []byte, ts float64) ([]byte, error) {
		gotTS = ts
		return frame, nil
	}
	r, _ := newRepo(t, Config{PosterAt: 2}, proc)

	res, err := r.Upload(context.Background(), UploadInput{Data: []byte("video"), OriginalName: "clip.webm", Mime: "video/webm"})
	require.NoError(t, err)
	a := res.Asset
	assert.Empty(t, res.Degraded)
	assert.InDelta(t, 0.4, gotTS, 1e-9)
	require.NotNil(t, a.Poster)
	assert.Equal(t, 64, a.Poster.Width)
	assert.Equal(t, 640, a.Width)
	require.NotNil(t, a.Duration)
	assert.Equal(t, 0.5, *a.Duration)
	assert.Contains(t, a.Files(), a.Poster.Path)
}

func TestPosterTimestamp(t *testing.T) {
	tests := []struct {
		at, duration, want float64
	}{
		{1, 10, 1},
		{1, 0.5, 0.4},
		{1, 0.05, 0},
		{1, 0, 1},
		{-3, 10, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PosterTimestamp(tt.at, tt.duration), 1e-9, "at=%v duration=%v", tt.at, tt.duration)
	}
}

// failingBackend fails the nth write.
type failingBackend struct {
	storage.Backend
	n      int32
	writes atomic.Int32
}

func (f *failingBackend) Write(ctx context.Context, key storage.Key, content []byte, opts ...storage.WriteOption) error {
	if f.writes.Add(1) == f.n {
		return &model.StorageError{Backend: "test", Op: "write", Key: key.String(), Err: errors.New("disk full")}
	}
	return f.Backend.Write(ctx, key, content, opts...)
}

func TestUpload_StorageFailureRollsBack(t *testing.T) {
	mem := memory.New()
	fb := &failingBackend{Backend: mem, n: 2}
	r := NewRepository(fb, NewFileStore(mem), newFakeProcessor(), Options{Logger: testutil.TestLoggerSilent()})

	_, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 800, 600), OriginalName: "a.jpg"})
	var se *model.StorageError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, 0, mem.Len(), "partial files must be removed")
}

func TestUpload_FilesystemURLs(t *testing.T) {
	b, err := fs.New(fs.Config{Root: t.TempDir(), BaseURL: "/uploads/"})
	require.NoError(t, err)
	r := NewRepository(b, NewFileStore(b), newFakeProcessor(), Options{Logger: testutil.TestLoggerSilent()})

	res, err := r.Upload(context.Background(), UploadInput{Data: jpeg(t, 50, 50), OriginalName: "dot.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/media/"+res.Asset.Path, res.Asset.URL)

	ok, err := b.Exists(context.Background(), storage.NewKey(storage.KindMedia, res.Asset.Path))
	require.NoError(t, err)
	assert.True(t, ok)
}

func keys(m map[string]*model.MediaFile) []string {
	var out []string
	for _, name := range model.VariantNames() {
		if m[name] != nil {
			out = append(out, name)
		}
	}
	return out
}
