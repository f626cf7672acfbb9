// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/olegiv/ocms-content/internal/model"
)

// Rename stores content at to and removes from. Backends implementing Mover do
// it in one step. Otherwise the new item is written first and the old one
// deleted; if the delete fails the new item is removed again so that exactly
// one of the two keys stays addressable.
func Rename(ctx context.Context, b Backend, from, to Key, content []byte, opts ...WriteOption) error {
	if m, ok := asMover(b); ok {
		return m.Move(ctx, from, to, content, opts...)
	}

	exists, err := b.Exists(ctx, to)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("rename %s to %s: %w", from, to, model.ErrDuplicateKey)
	}

	o := ApplyOptions(opts...)
	if err := b.Write(ctx, to, content, WithMessage(o.Message)); err != nil {
		return fmt.Errorf("writing %s: %w", to, err)
	}
	if err := b.Delete(ctx, from, opts...); err != nil {
		if rbErr := b.Delete(ctx, to, WithMessage("Revert "+o.Message)); rbErr != nil {
			return errors.Join(fmt.Errorf("deleting %s: %w", from, err), fmt.Errorf("reverting %s: %w", to, rbErr))
		}
		return fmt.Errorf("deleting %s: %w", from, err)
	}
	return nil
}

func asMover(b Backend) (Mover, bool) {
	m, ok := b.(Mover)
	return m, ok
}
