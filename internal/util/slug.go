// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides slug generation, filename sanitizing and path
// containment helpers shared by the repositories and backends.
package util

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented letters and drops the combining marks.
// Chained transformers keep state, so each call builds its own.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Slugify lowercases s, strips accents and joins the remaining ASCII letter
// and digit runs with single hyphens. Whitespace, hyphens and underscores
// separate words; other punctuation is dropped.
func Slugify(s string) string {
	plain, _, _ := transform.String(stripMarks(), s)

	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			sep = true
		}
	}
	return b.String()
}

// IsValidSlug reports whether s is lowercase ASCII words joined by single
// hyphens.
func IsValidSlug(s string) bool {
	return s != "" && Slugify(s) == s
}

// SlugFromTitle derives a slug from a human title. Scripts that accent
// stripping cannot reduce to Latin are transliterated; fallback is used when
// nothing remains.
func SlugFromTitle(title, fallback string) string {
	if slug := Slugify(title); slug != "" {
		return slug
	}
	if slug := Slugify(unidecode.Unidecode(title)); slug != "" {
		return slug
	}
	return fallback
}

// MaxSlugAttempts bounds the suffix search in UniqueSlug.
const MaxSlugAttempts = 1000

// UniqueSlug returns base, or base-2, base-3 and so on, choosing the first
// candidate for which taken reports false.
func UniqueSlug(ctx context.Context, base string, taken func(context.Context, string) (bool, error)) (string, error) {
	candidate := base
	for i := 2; i <= MaxSlugAttempts+1; i++ {
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, MaxSlugAttempts)
}
