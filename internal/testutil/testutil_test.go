// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package testutil

import (
	"bytes"
	"image"
	_ "image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func TestTestDB(t *testing.T) {
	db := TestDB(t)

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM entry_documents").Scan(&n); err != nil {
		t.Fatalf("entry_documents not migrated: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM media_assets").Scan(&n); err != nil {
		t.Fatalf("media_assets not migrated: %v", err)
	}
}

func TestTestImage(t *testing.T) {
	data := TestImage(t, 40, 20, imaging.PNG)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if format != "png" || cfg.Width != 40 || cfg.Height != 20 {
		t.Errorf("got %s %dx%d, want png 40x20", format, cfg.Width, cfg.Height)
	}
}
