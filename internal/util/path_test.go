// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantBase string
		wantExt  string
	}{
		{"simple", "photo.jpg", "photo", "jpg"},
		{"uppercase extension", "Photo.JPG", "photo", "jpg"},
		{"spaces and underscores", "My  Summer_Photo.png", "my-summer-photo", "png"},
		{"diacritics", "Café Résumé.webp", "cafe-resume", "webp"},
		{"cyrillic", "Привет мир.jpg", "privet-mir", "jpg"},
		{"punctuation", "hello, world!!.gif", "hello-world", "gif"},
		{"directory components", "../../etc/passwd", "passwd", ""},
		{"windows path", `C:\Users\me\cat.jpeg`, "cat", "jpeg"},
		{"nothing left", "!!!.png", "file", "png"},
		{"empty", "", "file", ""},
		{"hyphen runs", "a - b--c.png", "a-b-c", "png"},
		{"dotfile", ".hidden", "file", "hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, ext := SanitizeFilename(tt.input)
			if base != tt.wantBase || ext != tt.wantExt {
				t.Errorf("SanitizeFilename(%q) = (%q, %q), want (%q, %q)", tt.input, base, ext, tt.wantBase, tt.wantExt)
			}
		})
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	base, _ := SanitizeFilename(strings.Repeat("ab ", 50) + ".jpg")
	if len(base) > MaxFilenameBase {
		t.Errorf("base length = %d, want <= %d", len(base), MaxFilenameBase)
	}
	if strings.HasSuffix(base, "-") {
		t.Errorf("base %q ends with a hyphen", base)
	}
}

func TestSafeJoinPath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name       string
		components []string
		wantErr    bool
	}{
		{"nested", []string{"entries", "posts", "a.json"}, false},
		{"base itself", nil, false},
		{"traversal", []string{"..", "outside"}, true},
		{"traversal inside component", []string{"entries/../../outside"}, true},
		{"sibling with shared prefix", []string{"..", filepath.Base(base) + "-other"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoinPath(base, tt.components...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("SafeJoinPath(%v) = %q, want error", tt.components, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SafeJoinPath(%v) unexpected error: %v", tt.components, err)
			}
			if !strings.HasPrefix(got, base) {
				t.Errorf("SafeJoinPath(%v) = %q, not under %q", tt.components, got, base)
			}
		})
	}
}
