// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// MaxFilenameBase caps the sanitized base name of an uploaded file.
const MaxFilenameBase = 60

var (
	filenameInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	filenameSpace   = regexp.MustCompile(`[\s_]+`)
	extInvalid      = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// SanitizeFilename turns an uploaded name into a filesystem and URL safe base
// name and extension. Directory components are dropped, non-Latin text is
// transliterated, whitespace and underscores become single hyphens and other
// characters are removed. The base is capped at MaxFilenameBase and falls back
// to "file" when nothing survives.
func SanitizeFilename(name string) (base, ext string) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	ext = path.Ext(name)
	base = strings.TrimSuffix(name, ext)
	ext = extInvalid.ReplaceAllString(strings.ToLower(strings.TrimPrefix(ext, ".")), "")

	base = strings.ToLower(unidecode.Unidecode(base))
	base = filenameSpace.ReplaceAllString(base, "-")
	base = filenameInvalid.ReplaceAllString(base, "")
	base = multipleHyphens.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if len(base) > MaxFilenameBase {
		base = strings.TrimRight(base[:MaxFilenameBase], "-")
	}
	if base == "" {
		base = "file"
	}
	return base, ext
}

// ValidatePathWithinBase ensures that a resolved path is within the expected
// base directory.
func ValidatePathWithinBase(basePath, targetPath string) error {
	absBase, err := filepath.Abs(filepath.Clean(basePath))
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}
	absTarget, err := filepath.Abs(filepath.Clean(targetPath))
	if err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	// Trailing separator so /data-other does not match base /data
	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: path escapes base directory")
	}
	return nil
}

// SafeJoinPath joins path components under basePath and rejects results that
// escape it.
func SafeJoinPath(basePath string, components ...string) (string, error) {
	fullPath := filepath.Join(append([]string{basePath}, components...)...)
	if err := ValidatePathWithinBase(basePath, fullPath); err != nil {
		return "", err
	}
	return fullPath, nil
}
