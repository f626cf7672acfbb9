// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Store persists MediaAsset records. docstore.MediaRecords and FileStore
// implement it.
type Store interface {
	Get(ctx context.Context, id string) (*model.MediaAsset, error)
	Put(ctx context.Context, asset *model.MediaAsset) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.MediaAsset, error)
}

// HashFinder is implemented by stores that can look assets up by content hash.
type HashFinder interface {
	FindByHash(ctx context.Context, hash string) (*model.MediaAsset, error)
}

// FileStore keeps media records as JSON documents at media/records/<id>.json
// on a storage backend.
type FileStore struct {
	backend storage.Backend
}

// NewFileStore creates a record store on backend.
func NewFileStore(backend storage.Backend) *FileStore {
	return &FileStore{backend: backend}
}

func recordKey(id string) storage.Key {
	return storage.NewKey(storage.KindMedia, "records", id+".json")
}

// Get returns the asset with id.
func (s *FileStore) Get(ctx context.Context, id string) (*model.MediaAsset, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("media %q: %w", id, model.ErrNotFound)
	}
	data, err := s.backend.Read(ctx, recordKey(id))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("media %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	var asset model.MediaAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("decoding media %s: %w", id, err)
	}
	return &asset, nil
}

// Put writes the asset record.
func (s *FileStore) Put(ctx context.Context, asset *model.MediaAsset) error {
	data, err := json.MarshalIndent(asset, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding media %s: %w", asset.ID, err)
	}
	return s.backend.Write(ctx, recordKey(asset.ID), append(data, '\n'),
		storage.WithMessage(fmt.Sprintf("Update media %s", asset.ID)))
}

// Delete removes the asset record.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	err := s.backend.Delete(ctx, recordKey(id), storage.WithMessage(fmt.Sprintf("Delete media %s", id)))
	if storage.IsNotFound(err) {
		return fmt.Errorf("media %s: %w", id, model.ErrNotFound)
	}
	return err
}

// List returns every asset, newest first.
func (s *FileStore) List(ctx context.Context) ([]*model.MediaAsset, error) {
	names, err := s.backend.List(ctx, storage.NewKey(storage.KindMedia, "records"))
	if err != nil {
		return nil, err
	}
	assets := make([]*model.MediaAsset, 0, len(names))
	for _, name := range names {
		id, ok := strings.CutSuffix(name, ".json")
		if !ok {
			continue
		}
		a, err := s.Get(ctx, id)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		assets = append(assets, a)
	}
	slices.SortStableFunc(assets, func(a, b *model.MediaAsset) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return assets, nil
}

// FindByHash scans the records for the newest asset with hash.
func (s *FileStore) FindByHash(ctx context.Context, hash string) (*model.MediaAsset, error) {
	assets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Hash == hash {
			return a, nil
		}
	}
	return nil, fmt.Errorf("media with hash %s: %w", hash, model.ErrNotFound)
}
