// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package docstore implements storage.Backend on a SQL database, one row per
// key. The key's Kind picks the table, so entries, media, categories and users
// never share a namespace. A per-row revision counter lets callers detect
// concurrent read-modify-write cycles.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Backend stores documents in per-kind tables.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an opened and migrated database.
func New(db *sql.DB, d Dialect) *Backend {
	return &Backend{db: db, dialect: d, now: time.Now}
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "docstore"
}

// DB returns the underlying handle.
func (b *Backend) DB() *sql.DB {
	return b.db
}

func table(k storage.Kind) string {
	switch k {
	case storage.KindEntries:
		return "entry_documents"
	case storage.KindMedia:
		return "media_documents"
	case storage.KindCategories:
		return "category_documents"
	case storage.KindUsers:
		return "user_documents"
	default:
		return "documents"
	}
}

func (b *Backend) q(query string, k storage.Kind) string {
	return b.dialect.rebind(strings.ReplaceAll(query, "{table}", table(k)))
}

func (b *Backend) storageErr(op string, key storage.Key, err error) error {
	return &model.StorageError{Backend: b.Name(), Op: op, Key: key.FullPath(), Err: err}
}

// ReadRevision implements storage.Revisioned; the revision is the row counter.
func (b *Backend) ReadRevision(ctx context.Context, key storage.Key) ([]byte, string, error) {
	var (
		content  []byte
		revision int64
	)
	err := b.db.QueryRowContext(ctx, b.q("SELECT content, revision FROM {table} WHERE path = ?", key.Kind), key.Path).
		Scan(&content, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", storage.NotFound(key)
	}
	if err != nil {
		return nil, "", b.storageErr("read", key, err)
	}
	return content, strconv.FormatInt(revision, 10), nil
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, key storage.Key) ([]byte, error) {
	data, _, err := b.ReadRevision(ctx, key)
	return data, err
}

// Write implements storage.Backend. With WithRevision the row is only
// updated if its revision still matches.
func (b *Backend) Write(ctx context.Context, key storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)
	if content == nil {
		content = []byte{}
	}
	now := b.now().UnixMilli()

	if o.Revision != "" {
		rev, err := strconv.ParseInt(o.Revision, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid revision %q: %w", key, o.Revision, model.ErrConflict)
		}
		res, err := b.db.ExecContext(ctx,
			b.q("UPDATE {table} SET content = ?, revision = revision + 1, updated_at = ? WHERE path = ? AND revision = ?", key.Kind),
			content, now, key.Path, rev)
		if err != nil {
			return b.storageErr("write", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", key, model.ErrConflict)
		}
		return nil
	}

	var query string
	switch b.dialect {
	case MySQL:
		query = "INSERT INTO {table} (path, content, revision, updated_at) VALUES (?, ?, 1, ?) " +
			"ON DUPLICATE KEY UPDATE content = VALUES(content), revision = revision + 1, updated_at = VALUES(updated_at)"
	default:
		query = "INSERT INTO {table} (path, content, revision, updated_at) VALUES (?, ?, 1, ?) " +
			"ON CONFLICT(path) DO UPDATE SET content = excluded.content, revision = {table}.revision + 1, updated_at = excluded.updated_at"
	}
	if _, err := b.db.ExecContext(ctx, b.q(query, key.Kind), key.Path, content, now); err != nil {
		return b.storageErr("write", key, err)
	}
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key storage.Key, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	query := "DELETE FROM {table} WHERE path = ?"
	args := []any{key.Path}
	if o.Revision != "" {
		rev, err := strconv.ParseInt(o.Revision, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid revision %q: %w", key, o.Revision, model.ErrConflict)
		}
		query += " AND revision = ?"
		args = append(args, rev)
	}

	res, err := b.db.ExecContext(ctx, b.q(query, key.Kind), args...)
	if err != nil {
		return b.storageErr("delete", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if o.Revision != "" {
			if ok, _ := b.Exists(ctx, key); ok {
				return fmt.Errorf("%s: %w", key, model.ErrConflict)
			}
		}
		return storage.NotFound(key)
	}
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key storage.Key) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, b.q("SELECT 1 FROM {table} WHERE path = ?", key.Kind), key.Path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, b.storageErr("exists", key, err)
	}
	return true, nil
}

// List implements storage.Backend by prefix-matching stored paths and
// returning the first segment below dir.
func (b *Backend) List(ctx context.Context, dir storage.Key) ([]string, error) {
	prefix := ""
	if dir.Path != "" {
		prefix = dir.Path + "/"
	}

	rows, err := b.db.QueryContext(ctx,
		b.q("SELECT path FROM {table} WHERE path LIKE ? ESCAPE '!'", dir.Kind), escapeLike(prefix)+"%")
	if err != nil {
		return nil, b.storageErr("list", dir, err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, b.storageErr("list", dir, err)
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, b.storageErr("list", dir, err)
	}
	slices.Sort(names)
	return names, nil
}

// EnsureDir implements storage.Backend. Tables have no directories.
func (b *Backend) EnsureDir(context.Context, storage.Key) error {
	return nil
}

// Move implements storage.Mover in one transaction. Keys of different kinds
// move between tables.
func (b *Backend) Move(ctx context.Context, from, to storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return b.storageErr("move", from, err)
	}
	defer func() { _ = tx.Rollback() }()

	var rev int64
	err = tx.QueryRowContext(ctx, b.q("SELECT revision FROM {table} WHERE path = ?", from.Kind), from.Path).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound(from)
	}
	if err != nil {
		return b.storageErr("move", from, err)
	}
	if o.Revision != "" && o.Revision != strconv.FormatInt(rev, 10) {
		return fmt.Errorf("%s: %w", from, model.ErrConflict)
	}

	var one int
	err = tx.QueryRowContext(ctx, b.q("SELECT 1 FROM {table} WHERE path = ?", to.Kind), to.Path).Scan(&one)
	if err == nil {
		return fmt.Errorf("move to %s: %w", to, model.ErrDuplicateKey)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return b.storageErr("move", to, err)
	}

	if _, err := tx.ExecContext(ctx, b.q("DELETE FROM {table} WHERE path = ?", from.Kind), from.Path); err != nil {
		return b.storageErr("move", from, err)
	}
	if content == nil {
		content = []byte{}
	}
	if _, err := tx.ExecContext(ctx,
		b.q("INSERT INTO {table} (path, content, revision, updated_at) VALUES (?, ?, 1, ?)", to.Kind),
		to.Path, content, b.now().UnixMilli()); err != nil {
		return b.storageErr("move", to, err)
	}
	if err := tx.Commit(); err != nil {
		return b.storageErr("move", to, err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards with '!'.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Revisioned = (*Backend)(nil)
	_ storage.Mover      = (*Backend)(nil)
)
