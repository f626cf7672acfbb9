// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging is the byte-processing collaborator of the media pipeline:
// image probing, resizing and placeholders in pure Go, video probing and
// poster frames through ffprobe/ffmpeg when they are installed.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/olegiv/ocms-content/internal/model"
)

// PlaceholderEdge is the longest edge of the blur placeholder.
const PlaceholderEdge = 16

// ImageInfo describes a decoded or encoded image.
type ImageInfo struct {
	Width  int
	Height int
	Mime   string
}

// Options configure a Processor.
type Options struct {
	FFprobePath string // Defaults to "ffprobe" on PATH
	FFmpegPath  string // Defaults to "ffmpeg" on PATH
}

// Processor implements image and video processing on in-memory bytes.
type Processor struct {
	ffprobe string
	ffmpeg  string
}

// NewProcessor creates a processor.
func NewProcessor(opts Options) *Processor {
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	return &Processor{ffprobe: opts.FFprobePath, ffmpeg: opts.FFmpegPath}
}

// ProbeImage returns the displayed dimensions of an image, taking EXIF
// orientation into account, without decoding pixels.
func (p *Processor) ProbeImage(data []byte) (ImageInfo, error) {
	format := detectFormat(data)
	if format == "" {
		return ImageInfo{}, fmt.Errorf("unsupported image format")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image config: %w", err)
	}
	w, h := cfg.Width, cfg.Height
	if o := readExifOrientation(bytes.NewReader(data)); o >= 5 && o <= 8 {
		w, h = h, w
	}
	return ImageInfo{Width: w, Height: h, Mime: formatToMimeType(format)}, nil
}

// ResizeImage fits the image inside a maxEdge square and encodes it. It never
// upscales: an image already within maxEdge is re-encoded at its own size.
// An empty format keeps the source format; WebP is written as JPEG.
func (p *Processor) ResizeImage(data []byte, maxEdge, quality int, format string) ([]byte, ImageInfo, error) {
	img, srcFormat, err := decode(data)
	if err != nil {
		return nil, ImageInfo{}, err
	}
	if format == "" {
		format = srcFormat
	}

	b := img.Bounds()
	if maxEdge > 0 && (b.Dx() > maxEdge || b.Dy() > maxEdge) {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	out, err := encodeImage(img, format, quality)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to encode image: %w", err)
	}
	rb := img.Bounds()
	return out, ImageInfo{Width: rb.Dx(), Height: rb.Dy(), Mime: outputMimeType(format)}, nil
}

// Placeholder returns a tiny blurred JPEG as a data URL.
func (p *Processor) Placeholder(data []byte) (string, error) {
	img, _, err := decode(data)
	if err != nil {
		return "", err
	}
	small := imaging.Fit(img, PlaceholderEdge, PlaceholderEdge, imaging.Box)
	small = imaging.Blur(small, 1)

	out, err := encodeImage(small, "jpeg", 40)
	if err != nil {
		return "", fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out), nil
}

// IsImage checks if a MIME type represents an image that can be processed.
func (p *Processor) IsImage(mimeType string) bool {
	return model.IsProcessableImage(mimeType)
}

// DetectMimeType detects the MIME type of raw data.
func DetectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return contentType
}

// decode decodes data and applies its EXIF orientation.
func decode(data []byte) (image.Image, string, error) {
	format := detectFormat(data)
	if format == "" {
		return nil, "", fmt.Errorf("unsupported image format")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return applyOrientation(img, readExifOrientation(bytes.NewReader(data))), format, nil
}

// readExifOrientation reads the EXIF orientation tag; 1 (normal) when absent.
func readExifOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation applies an EXIF orientation transformation.
// 2 flip H, 3 rotate 180, 4 flip V, 5 transpose, 6 rotate 90 CW,
// 7 transverse, 8 rotate 90 CCW.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// encodeImage encodes img; formats without a pure Go encoder become JPEG.
func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// detectFormat detects the image format from raw bytes.
func detectFormat(data []byte) string {
	contentType := http.DetectContentType(data)
	// TIFF is refused (CVE-2023-36308 in disintegration/imaging)
	if strings.Contains(contentType, "tiff") {
		return ""
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return "jpeg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return ""
	}
}

// FormatForMime maps a MIME type to an encoder format name.
func FormatForMime(mime string) string {
	switch mime {
	case model.MimeTypePNG:
		return "png"
	case model.MimeTypeGIF:
		return "gif"
	case model.MimeTypeWebP:
		return "webp"
	default:
		return "jpeg"
	}
}

// ExtensionForMime returns the file extension written for a MIME type.
func ExtensionForMime(mime string) string {
	switch mime {
	case model.MimeTypePNG:
		return "png"
	case model.MimeTypeGIF:
		return "gif"
	case model.MimeTypeWebP:
		return "webp"
	default:
		return "jpg"
	}
}

func formatToMimeType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return model.MimeTypeJPEG
	case "png":
		return model.MimeTypePNG
	case "gif":
		return model.MimeTypeGIF
	case "webp":
		return model.MimeTypeWebP
	default:
		return "application/octet-stream"
	}
}

// outputMimeType is the MIME type encodeImage produces for format.
func outputMimeType(format string) string {
	switch format {
	case "png":
		return model.MimeTypePNG
	case "gif":
		return model.MimeTypeGIF
	default:
		return model.MimeTypeJPEG
	}
}
