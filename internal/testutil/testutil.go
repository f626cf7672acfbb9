// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the content repository.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/olegiv/ocms-content/internal/storage/docstore"

	_ "github.com/mattn/go-sqlite3"
)

// TestLogger creates a test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a test logger that only outputs errors.
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary SQLite document database with migrations
// applied. It is closed when the test ends.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ocms-content-test.db")
	db, err := docstore.Open(context.Background(), docstore.Config{
		Dialect: docstore.SQLite,
		DSN:     dbPath,
		Driver:  "sqlite3",
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := docstore.Migrate(db, docstore.SQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// TestImage returns an encoded gradient image of the given size. Format is
// one of imaging.JPEG, imaging.PNG or imaging.GIF.
func TestImage(t *testing.T, width, height int, format imaging.Format) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, width)),
				G: uint8(y * 255 / max(1, height)),
				B: 128,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}
