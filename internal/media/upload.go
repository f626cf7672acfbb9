// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-content/internal/imaging"
	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/util"
)

// Processing steps reported in UploadResult.Degraded
const (
	StepProbe       = "probe"
	StepResize      = "resize"
	StepPlaceholder = "placeholder"
	StepPoster      = "poster"
)

// UploadInput is one uploaded file, held fully in memory.
type UploadInput struct {
	Data         []byte
	OriginalName string
	Mime         string // Detected from the bytes when empty
	Title        string
	Alt          string
}

// UploadResult contains the stored asset and any steps that degraded.
type UploadResult struct {
	Asset    *model.MediaAsset
	Degraded []*model.ProcessingError
}

// upload tracks one pipeline run.
type upload struct {
	r        *Repository
	asset    *model.MediaAsset
	data     []byte
	written  []storage.Key
	degraded []*model.ProcessingError
}

func (u *upload) degrade(step string, err error) {
	u.degraded = append(u.degraded, &model.ProcessingError{Step: step, Err: err})
	u.r.logger.Warn("media processing degraded", "media_id", u.asset.ID, "step", step, "error", err)
}

// put writes bytes under files/<tier>/<id>/<filename> and describes the file.
func (u *upload) put(ctx context.Context, tier, filename, mimeType string, data []byte, w, h int) (*model.MediaFile, error) {
	key := storage.NewKey(storage.KindMedia, "files", tier, u.asset.ID, filename)
	err := u.r.backend.Write(ctx, key, data,
		storage.WithMessage(fmt.Sprintf("Upload media %s (%s)", u.asset.ID, tier)))
	if err != nil {
		return nil, err
	}
	u.written = append(u.written, key)
	return &model.MediaFile{
		Path:   key.Path,
		URL:    u.r.fileURL(key),
		Mime:   mimeType,
		Width:  w,
		Height: h,
		Size:   int64(len(data)),
	}, nil
}

// rollback removes files written before a failure.
func (u *upload) rollback(ctx context.Context) {
	for _, key := range u.written {
		if err := u.r.backend.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
			u.r.logger.Warn("failed to remove partial upload", "media_id", u.asset.ID, "path", key.Path, "error", err)
		}
	}
}

// Upload validates, processes and stores a file. Processing failures degrade
// to storing the unprocessed bytes and are listed in the result; storage
// failures abort the upload and remove what was already written.
func (r *Repository) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	mimeType, err := r.checkUpload(in)
	if err != nil {
		return nil, err
	}

	base, ext := util.SanitizeFilename(in.OriginalName)
	if ext == "" {
		ext = extensionFor(mimeType)
	}
	id := uuid.NewString()
	filename := base + "-" + id[:8]
	if ext != "" {
		filename += "." + ext
	}

	sum := sha256.Sum256(in.Data)
	now := r.now().UTC()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = base
	}
	u := &upload{
		r:    r,
		data: in.Data,
		asset: &model.MediaAsset{
			ID:           id,
			Filename:     filename,
			OriginalName: in.OriginalName,
			Slug:         base,
			Mime:         mimeType,
			Size:         int64(len(in.Data)),
			Title:        r.strict.Sanitize(title),
			Alt:          r.strict.Sanitize(strings.TrimSpace(in.Alt)),
			Hash:         hex.EncodeToString(sum[:]),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	switch {
	case model.IsProcessableImage(mimeType):
		err = u.image(ctx, base)
	case model.IsVideoMimeType(mimeType):
		err = u.video(ctx, base)
	default:
		err = u.raw(ctx)
	}
	if err == nil {
		err = r.store.Put(ctx, u.asset)
	}
	if err != nil {
		u.rollback(ctx)
		return nil, err
	}

	r.logger.Info("media uploaded", "media_id", id, "mime", mimeType, "size", len(in.Data),
		"variants", len(u.asset.Variants), "degraded", len(u.degraded))
	return &UploadResult{Asset: u.asset, Degraded: u.degraded}, nil
}

// checkUpload applies the size limit and MIME allowlist, and returns the
// effective MIME type.
func (r *Repository) checkUpload(in UploadInput) (string, error) {
	verr := &model.ValidationError{Collection: "media"}
	if len(in.Data) == 0 {
		verr.Add("file", "is empty")
		return "", verr
	}
	if int64(len(in.Data)) > r.cfg.MaxUploadSize {
		verr.Add("file", "size exceeds maximum allowed (%d bytes)", r.cfg.MaxUploadSize)
		return "", verr
	}

	mimeType := in.Mime
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = imaging.DetectMimeType(in.Data)
	}
	if !r.allowList[mimeType] {
		verr.Add("mime", "file type %s is not allowed", mimeType)
		return "", verr
	}
	return mimeType, nil
}

// image generates every tier the source exceeds, then picks the primary.
func (u *upload) image(ctx context.Context, base string) error {
	a := u.asset
	info, err := u.r.proc.ProbeImage(u.data)
	if err != nil {
		u.degrade(StepProbe, err)
		return u.raw(ctx)
	}
	a.Width, a.Height = info.Width, info.Height
	longest := max(info.Width, info.Height)

	for _, tier := range model.ImageVariants {
		if longest <= tier.MaxEdge {
			continue
		}
		out, oi, err := u.r.proc.ResizeImage(u.data, tier.MaxEdge, tier.Quality, "")
		if err != nil {
			u.degrade(StepResize+":"+tier.Name, err)
			continue
		}
		name := base + "-" + a.ID[:8] + "." + extensionFor(oi.Mime)
		f, err := u.put(ctx, tier.Name, name, oi.Mime, out, oi.Width, oi.Height)
		if err != nil {
			return err
		}
		if a.Variants == nil {
			a.Variants = make(map[string]*model.MediaFile)
		}
		a.Variants[tier.Name] = f
	}

	primary := u.r.cfg.PrimaryVariant
	if a.Variants[primary] == nil {
		primary = model.VariantOriginal
	}
	if primary == model.VariantOriginal || u.r.cfg.KeepOriginal {
		f, err := u.put(ctx, model.VariantOriginal, a.Filename, a.Mime, u.data, info.Width, info.Height)
		if err != nil {
			return err
		}
		a.Original = f
	}

	if u.r.cfg.Placeholder {
		if p, err := u.r.proc.Placeholder(u.data); err != nil {
			u.degrade(StepPlaceholder, err)
		} else {
			a.BlurDataURL = p
		}
	}
	return setActive(a, primary)
}

// video stores the file, then probes it and extracts a poster when the
// processing tools are available.
func (u *upload) video(ctx context.Context, base string) error {
	a := u.asset
	if err := u.raw(ctx); err != nil {
		return err
	}

	at := u.r.cfg.PosterAt
	info, err := u.r.proc.ProbeVideo(ctx, u.data)
	if err != nil {
		u.degrade(StepProbe, err)
		if errors.Is(err, model.ErrUnavailable) {
			return nil
		}
	} else {
		a.Width, a.Height = info.Width, info.Height
		a.Original.Width, a.Original.Height = info.Width, info.Height
		if info.Duration > 0 {
			d := info.Duration
			a.Duration = &d
		}
		if err := setActive(a, model.VariantOriginal); err != nil {
			return err
		}
		at = PosterTimestamp(at, info.Duration)
	}

	frame, err := u.r.proc.ExtractFrame(ctx, u.data, at)
	if err != nil {
		u.degrade(StepPoster, err)
		return nil
	}
	var w, h int
	if fi, err := u.r.proc.ProbeImage(frame); err == nil {
		w, h = fi.Width, fi.Height
	}
	f, err := u.put(ctx, StepPoster, base+"-"+a.ID[:8]+".jpg", model.MimeTypeJPEG, frame, w, h)
	if err != nil {
		return err
	}
	a.Poster = &model.Poster{Path: f.Path, URL: f.URL, Width: w, Height: h}
	return nil
}

// raw stores the unprocessed bytes as the original and primary file.
func (u *upload) raw(ctx context.Context) error {
	a := u.asset
	if a.Width == 0 && a.Height == 0 {
		if info, err := u.r.proc.ProbeImage(u.data); err == nil {
			a.Width, a.Height = info.Width, info.Height
		}
	}
	f, err := u.put(ctx, model.VariantOriginal, a.Filename, a.Mime, u.data, a.Width, a.Height)
	if err != nil {
		return err
	}
	a.Original = f
	return setActive(a, model.VariantOriginal)
}

// PosterTimestamp clamps the configured poster time into the stream:
// min(at, duration-ε), never negative. An unknown duration keeps at.
func PosterTimestamp(at, duration float64) float64 {
	if duration > 0 {
		at = min(at, duration-posterEpsilon)
	}
	return max(at, 0)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case model.MimeTypeJPEG, model.MimeTypePNG, model.MimeTypeGIF, model.MimeTypeWebP:
		return imaging.ExtensionForMime(mimeType)
	case model.MimeTypeSVG:
		return "svg"
	case model.MimeTypePDF:
		return "pdf"
	case model.MimeTypeMP4:
		return "mp4"
	case model.MimeTypeWebM:
		return "webm"
	case model.MimeTypeMOV:
		return "mov"
	default:
		return ""
	}
}
