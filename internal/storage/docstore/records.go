// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/olegiv/ocms-content/internal/model"
)

// MediaRecords keeps media assets as first-class rows instead of serialized
// files. Searchable columns are kept beside the full JSON document.
type MediaRecords struct {
	db      *sql.DB
	dialect Dialect
}

// NewMediaRecords creates a media record store on a migrated database.
func NewMediaRecords(db *sql.DB, d Dialect) *MediaRecords {
	return &MediaRecords{db: db, dialect: d}
}

const mediaColumns = "data"

func (r *MediaRecords) scanOne(row *sql.Row, id string) (*model.MediaAsset, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("media %s: %w", id, model.ErrNotFound)
		}
		return nil, &model.StorageError{Backend: "docstore", Op: "get media", Key: id, Err: err}
	}
	var asset model.MediaAsset
	if err := json.Unmarshal([]byte(data), &asset); err != nil {
		return nil, fmt.Errorf("decoding media %s: %w", id, err)
	}
	return &asset, nil
}

// Get returns the asset with id.
func (r *MediaRecords) Get(ctx context.Context, id string) (*model.MediaAsset, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind("SELECT "+mediaColumns+" FROM media_assets WHERE id = ?"), id)
	return r.scanOne(row, id)
}

// FindByHash returns the most recent asset with the given content hash.
func (r *MediaRecords) FindByHash(ctx context.Context, hash string) (*model.MediaAsset, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.rebind("SELECT "+mediaColumns+" FROM media_assets WHERE hash = ? ORDER BY created_at DESC LIMIT 1"), hash)
	return r.scanOne(row, "hash:"+hash)
}

// Put inserts or replaces the asset.
func (r *MediaRecords) Put(ctx context.Context, asset *model.MediaAsset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("encoding media %s: %w", asset.ID, err)
	}

	var query string
	switch r.dialect {
	case MySQL:
		query = "INSERT INTO media_assets (id, hash, filename, mime, size, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE hash = VALUES(hash), filename = VALUES(filename), mime = VALUES(mime), size = VALUES(size), " +
			"data = VALUES(data), updated_at = VALUES(updated_at)"
	default:
		query = "INSERT INTO media_assets (id, hash, filename, mime, size, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) " +
			"ON CONFLICT(id) DO UPDATE SET hash = excluded.hash, filename = excluded.filename, mime = excluded.mime, " +
			"size = excluded.size, data = excluded.data, updated_at = excluded.updated_at"
	}

	_, err = r.db.ExecContext(ctx, r.dialect.rebind(query),
		asset.ID, asset.Hash, asset.Filename, asset.Mime, asset.Size, string(data),
		asset.CreatedAt.UnixMilli(), asset.UpdatedAt.UnixMilli())
	if err != nil {
		return &model.StorageError{Backend: "docstore", Op: "put media", Key: asset.ID, Err: err}
	}
	return nil
}

// Delete removes the asset record.
func (r *MediaRecords) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind("DELETE FROM media_assets WHERE id = ?"), id)
	if err != nil {
		return &model.StorageError{Backend: "docstore", Op: "delete media", Key: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("media %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// List returns all assets, newest first.
func (r *MediaRecords) List(ctx context.Context) ([]*model.MediaAsset, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+mediaColumns+" FROM media_assets ORDER BY created_at DESC, id")
	if err != nil {
		return nil, &model.StorageError{Backend: "docstore", Op: "list media", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var assets []*model.MediaAsset
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &model.StorageError{Backend: "docstore", Op: "list media", Err: err}
		}
		var a model.MediaAsset
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("decoding media record: %w", err)
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}
