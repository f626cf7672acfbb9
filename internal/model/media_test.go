package model

import (
	"testing"
)

func TestMediaIsImage(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{MimeTypeJPEG, true},
		{MimeTypePNG, true},
		{MimeTypeGIF, true},
		{MimeTypeWebP, true},
		{MimeTypeSVG, false},
		{MimeTypePDF, false},
		{MimeTypeMP4, false},
		{MimeTypeWebM, false},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			m := &MediaAsset{Mime: tt.mimeType}
			if got := m.IsImage(); got != tt.want {
				t.Errorf("IsImage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaIsVideo(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{MimeTypeMP4, true},
		{MimeTypeWebM, true},
		{MimeTypeMOV, true},
		{MimeTypeJPEG, false},
		{MimeTypePDF, false},
		{"video/avi", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			m := &MediaAsset{Mime: tt.mimeType}
			if got := m.IsVideo(); got != tt.want {
				t.Errorf("IsVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageVariantsDescending(t *testing.T) {
	for i := 1; i < len(ImageVariants); i++ {
		if ImageVariants[i].MaxEdge >= ImageVariants[i-1].MaxEdge {
			t.Errorf("tier %s (%d) is not smaller than %s (%d)",
				ImageVariants[i].Name, ImageVariants[i].MaxEdge,
				ImageVariants[i-1].Name, ImageVariants[i-1].MaxEdge)
		}
	}
}

func TestIsVariantName(t *testing.T) {
	for _, name := range VariantNames() {
		if !IsVariantName(name) {
			t.Errorf("IsVariantName(%q) = false", name)
		}
	}
	if IsVariantName(VariantOriginal) {
		t.Error("original must not be a generated tier")
	}
	if IsVariantName("huge") {
		t.Error("unknown tier accepted")
	}
}

func TestMediaFiles(t *testing.T) {
	m := &MediaAsset{
		Path:     "files/display/a/x.jpg",
		Original: &MediaFile{Path: "files/original/a/x.jpg"},
		Variants: map[string]*MediaFile{
			VariantDisplay: {Path: "files/display/a/x.jpg"},
			VariantThumb:   {Path: "files/thumb/a/x.jpg"},
		},
		Poster: &Poster{Path: "files/poster/a/x.jpg"},
	}

	got := m.Files()
	want := []string{
		"files/original/a/x.jpg",
		"files/display/a/x.jpg",
		"files/thumb/a/x.jpg",
		"files/poster/a/x.jpg",
	}
	if len(got) != len(want) {
		t.Fatalf("Files() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Files()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
