// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage defines the path-addressed backend contract shared by the
// filesystem, remote repository, document database and object store
// implementations.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/olegiv/ocms-content/internal/model"
)

// Kind names the logical subtree a key belongs to. Backends with a single
// namespace map it to a top-level directory; the document store maps it to a table.
type Kind int

// Key kinds
const (
	KindOther Kind = iota
	KindEntries
	KindMedia
	KindCategories
	KindUsers
)

// String returns the directory name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEntries:
		return "entries"
	case KindMedia:
		return "media"
	case KindCategories:
		return "categories"
	case KindUsers:
		return "users"
	default:
		return "other"
	}
}

// Kinds lists every kind.
func Kinds() []Kind {
	return []Kind{KindEntries, KindMedia, KindCategories, KindUsers, KindOther}
}

// Key addresses one item. Path is slash-separated and relative to the kind.
type Key struct {
	Kind Kind
	Path string
}

// NewKey builds a key, cleaning the path.
func NewKey(kind Kind, elems ...string) Key {
	return Key{Kind: kind, Path: CleanPath(path.Join(elems...))}
}

// FullPath returns "<kind>/<path>", the address used by single-namespace backends.
func (k Key) FullPath() string {
	if k.Path == "" {
		return k.Kind.String()
	}
	return k.Kind.String() + "/" + k.Path
}

func (k Key) String() string {
	return k.FullPath()
}

// Join returns a key under k.
func (k Key) Join(elems ...string) Key {
	return NewKey(k.Kind, append([]string{k.Path}, elems...)...)
}

// CleanPath normalizes a logical path: slash-separated, no leading slash, no
// "." or ".." segments. Traversal outside the root collapses to the root.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Backend is the storage contract. Implementations must be safe for concurrent use;
// they provide no ordering guarantees across writers beyond their own.
type Backend interface {
	// Read returns the content at key or an error matching model.ErrNotFound.
	Read(ctx context.Context, key Key) ([]byte, error)

	// Write creates or overwrites key.
	Write(ctx context.Context, key Key, content []byte, opts ...WriteOption) error

	// Delete removes key or returns an error matching model.ErrNotFound.
	Delete(ctx context.Context, key Key, opts ...WriteOption) error

	// Exists reports whether key holds content.
	Exists(ctx context.Context, key Key) (bool, error)

	// List returns the names directly under dir. A missing directory yields an empty list.
	List(ctx context.Context, dir Key) ([]string, error)

	// EnsureDir creates dir when the backend has directory semantics.
	EnsureDir(ctx context.Context, dir Key) error

	// Name identifies the backend in logs and errors.
	Name() string
}

// Revisioned is implemented by backends that carry a concurrency token per item.
type Revisioned interface {
	// ReadRevision returns the content together with its current revision token.
	ReadRevision(ctx context.Context, key Key) ([]byte, string, error)
}

// Mover is implemented by backends that can rename an item without a window in
// which neither or both keys exist.
type Mover interface {
	// Move replaces the item at from with content stored at to. It fails with
	// model.ErrDuplicateKey when to exists.
	Move(ctx context.Context, from, to Key, content []byte, opts ...WriteOption) error
}

// Linker is implemented by backends that serve stored items at their own URLs.
type Linker interface {
	URL(key Key) string
}

// Unwrapper is implemented by decorators around a backend.
type Unwrapper interface {
	Unwrap() Backend
}

// WriteOptions are collected from WriteOption values.
type WriteOptions struct {
	// Message is the commit message for backends that record history.
	Message string
	// Revision is the token the caller last observed; empty means "fetch current".
	Revision string
}

// WriteOption configures a write or delete.
type WriteOption func(*WriteOptions)

// WithMessage sets the commit message.
func WithMessage(msg string) WriteOption {
	return func(o *WriteOptions) { o.Message = msg }
}

// WithRevision supplies the revision token observed by an earlier read.
// Backends that track revisions reject the write with model.ErrConflict when stale.
func WithRevision(rev string) WriteOption {
	return func(o *WriteOptions) { o.Revision = rev }
}

// ApplyOptions folds opts into a WriteOptions value.
func ApplyOptions(opts ...WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ReadRevision reads key and, when the backend (or a backend it decorates)
// tracks revisions, the current token. The token is "" otherwise.
func ReadRevision(ctx context.Context, b Backend, key Key) ([]byte, string, error) {
	for cur := b; cur != nil; {
		if r, ok := cur.(Revisioned); ok {
			return r.ReadRevision(ctx, key)
		}
		u, ok := cur.(Unwrapper)
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	data, err := b.Read(ctx, key)
	return data, "", err
}

// URL returns the backend-specific URL for key, or "" when the backend has none.
func URL(b Backend, key Key) string {
	for cur := b; cur != nil; {
		if l, ok := cur.(Linker); ok {
			return l.URL(key)
		}
		u, ok := cur.(Unwrapper)
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	return ""
}

// IsNotFound reports whether err means the item is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

// NotFound returns an error for key that matches model.ErrNotFound.
func NotFound(key Key) error {
	return &notFoundError{key: key}
}

type notFoundError struct {
	key Key
}

func (e *notFoundError) Error() string {
	return "not found: " + e.key.FullPath()
}

func (e *notFoundError) Is(target error) bool {
	return target == model.ErrNotFound
}
