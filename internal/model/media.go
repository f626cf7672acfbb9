// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"slices"
	"time"
)

// Supported image variant tiers
const (
	VariantLarge   = "large"
	VariantDisplay = "display"
	VariantMedium  = "medium"
	VariantThumb   = "thumb"

	// VariantOriginal selects the retained unprocessed upload as the active representation.
	VariantOriginal = "original"
)

// Supported MIME types
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
	MimeTypeSVG  = "image/svg+xml"
	MimeTypePDF  = "application/pdf"
	MimeTypeMP4  = "video/mp4"
	MimeTypeWebM = "video/webm"
	MimeTypeMOV  = "video/quicktime"
)

// ImageVariantConfig defines settings for generating one image variant tier.
type ImageVariantConfig struct {
	Name    string
	MaxEdge int // longest edge in pixels; the source must exceed it for the tier to be generated
	Quality int
}

// ImageVariants is the variant tier catalogue, ordered by descending MaxEdge.
var ImageVariants = []ImageVariantConfig{
	{Name: VariantLarge, MaxEdge: 1920, Quality: 85},
	{Name: VariantDisplay, MaxEdge: 1280, Quality: 82},
	{Name: VariantMedium, MaxEdge: 768, Quality: 80},
	{Name: VariantThumb, MaxEdge: 320, Quality: 75},
}

// VariantConfig returns the tier configuration for name.
func VariantConfig(name string) (ImageVariantConfig, bool) {
	for _, v := range ImageVariants {
		if v.Name == name {
			return v, true
		}
	}
	return ImageVariantConfig{}, false
}

// IsVariantName reports whether name is one of the closed set of tier names.
func IsVariantName(name string) bool {
	_, ok := VariantConfig(name)
	return ok
}

// MediaFile describes one stored representation of an asset.
type MediaFile struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Mime   string `json:"mime,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   int64  `json:"size"`
}

// Poster is a still frame extracted from time-based media.
type Poster struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaAsset is an uploaded binary with its derived renditions.
type MediaAsset struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Slug         string `json:"slug"`

	// Primary representation, mirrored from ActiveVariant.
	Path     string   `json:"path"`
	URL      string   `json:"url"`
	Mime     string   `json:"mime"`
	Size     int64    `json:"size"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"`

	Original      *MediaFile            `json:"original,omitempty"`
	Variants      map[string]*MediaFile `json:"variants,omitempty"`
	ActiveVariant string                `json:"activeVariant,omitempty"`
	Poster        *Poster               `json:"poster,omitempty"`

	Title       string   `json:"title"`
	Alt         string   `json:"alt"`
	Caption     string   `json:"caption,omitempty"`
	Description string   `json:"description,omitempty"`
	Credit      string   `json:"credit,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Hash        string `json:"hash"`
	BlurDataURL string `json:"blurDataURL,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsImage returns true if the media type is an image.
func (m *MediaAsset) IsImage() bool {
	return IsProcessableImage(m.Mime)
}

// IsVideo returns true if the media type is a video.
func (m *MediaAsset) IsVideo() bool {
	return IsVideoMimeType(m.Mime)
}

// Files returns every stored representation path of the asset, without duplicates.
func (m *MediaAsset) Files() []string {
	var paths []string
	add := func(p string) {
		if p != "" && !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}
	if m.Original != nil {
		add(m.Original.Path)
	}
	for _, name := range VariantNames() {
		if v := m.Variants[name]; v != nil {
			add(v.Path)
		}
	}
	if m.Poster != nil {
		add(m.Poster.Path)
	}
	add(m.Path)
	return paths
}

// VariantNames returns tier names in catalogue order.
func VariantNames() []string {
	names := make([]string, 0, len(ImageVariants))
	for _, v := range ImageVariants {
		names = append(names, v.Name)
	}
	return names
}

// SupportedImageTypes returns the image MIME types that go through the resize pipeline.
func SupportedImageTypes() []string {
	return []string{MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP}
}

// SupportedVideoTypes returns a list of supported video MIME types.
func SupportedVideoTypes() []string {
	return []string{MimeTypeMP4, MimeTypeWebM, MimeTypeMOV}
}

// SupportedDocumentTypes returns a list of supported document MIME types.
func SupportedDocumentTypes() []string {
	return []string{MimeTypePDF, MimeTypeSVG}
}

// AllSupportedTypes returns all supported MIME types.
func AllSupportedTypes() []string {
	types := make([]string, 0)
	types = append(types, SupportedImageTypes()...)
	types = append(types, SupportedVideoTypes()...)
	types = append(types, SupportedDocumentTypes()...)
	return types
}

// IsSupportedMimeType checks if a MIME type is supported.
func IsSupportedMimeType(mimeType string) bool {
	return slices.Contains(AllSupportedTypes(), mimeType)
}

// IsProcessableImage reports whether mimeType is in the resize allowlist.
func IsProcessableImage(mimeType string) bool {
	return slices.Contains(SupportedImageTypes(), mimeType)
}

// IsVideoMimeType reports whether mimeType is time-based media.
func IsVideoMimeType(mimeType string) bool {
	return slices.Contains(SupportedVideoTypes(), mimeType)
}
