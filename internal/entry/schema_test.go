// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package entry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-content/internal/model"
)

func TestSchemaValidate(t *testing.T) {
	s := &Schema{
		Collection: "events",
		Fields: []Field{
			{Name: "title", Type: FieldText, Required: true},
			{Name: "seats", Type: FieldNumber},
			{Name: "open", Type: FieldBoolean},
			{Name: "starts", Type: FieldDate},
			{Name: "tags", Type: FieldList},
			{Name: "venue", Type: FieldObject},
		},
	}

	tests := []struct {
		name   string
		data   map[string]any
		fields []string
	}{
		{"valid", map[string]any{"title": "x", "seats": 10.0, "open": true, "starts": "2026-05-01", "tags": []any{"a"}, "venue": map[string]any{}}, nil},
		{"missing required", map[string]any{}, []string{"title"}},
		{"empty required", map[string]any{"title": ""}, []string{"title"}},
		{"wrong types", map[string]any{"title": "x", "seats": "ten", "open": "yes", "tags": "a"}, []string{"seats", "open", "tags"}},
		{"bad date", map[string]any{"title": "x", "starts": "May 1st"}, []string{"starts"}},
		{"rfc3339 date", map[string]any{"title": "x", "starts": "2026-05-01T10:00:00Z"}, nil},
		{"unknown fields pass", map[string]any{"title": "x", "extra": 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.data)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestSchemaValidateTypes(t *testing.T) {
	s := &Schema{
		Collection: "events",
		Fields: []Field{
			{Name: "title", Type: FieldText, Required: true},
			{Name: "seats", Type: FieldNumber},
		},
	}
	assert.NoError(t, s.ValidateTypes(map[string]any{"seats": 3.0}))
	assert.ErrorIs(t, s.Validate(map[string]any{"seats": 3.0}), model.ErrValidation)
	assert.ErrorIs(t, s.ValidateTypes(map[string]any{"seats": "three"}), model.ErrValidation)
}

func TestNilSchemaAcceptsAnything(t *testing.T) {
	var s *Schema
	assert.NoError(t, s.Validate(map[string]any{"x": 1}))
	assert.NoError(t, s.ValidateTypes(map[string]any{"x": 1}))
	assert.Equal(t, DefaultTitleField, s.titleField())
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"pages", "posts"}, r.Names())
	assert.NotNil(t, r.Get("posts"))
	assert.Nil(t, r.Get("events"))
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"collections": [
			{"name": "events", "titleField": "name", "fields": [
				{"name": "name", "type": "text", "required": true},
				{"name": "when", "type": "date"}
			]}
		]
	}`), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	s := r.Get("events")
	require.NotNil(t, s)
	assert.Equal(t, "name", s.titleField())

	repo := NewRepository(nil, Options{Schemas: r})
	assert.Same(t, r, repo.Schemas())
}

func TestLoadRegistry_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := LoadRegistry(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	_, err = LoadRegistry(write("bad.json", "{"))
	assert.Error(t, err)
	_, err = LoadRegistry(write("noname.json", `{"collections":[{"fields":[]}]}`))
	assert.Error(t, err)
	_, err = LoadRegistry(write("badtype.json", `{"collections":[{"name":"x","fields":[{"name":"a","type":"blob"}]}]}`))
	assert.Error(t, err)
}

func TestCustomTitleFieldDrivesSlug(t *testing.T) {
	r, _ := newRepo(t)
	r.Schemas().Register(&Schema{Collection: "events", TitleField: "name"})

	e, err := r.Create(context.Background(), "events", CreateInput{Data: map[string]any{"name": "Spring Fair"}})
	require.NoError(t, err)
	assert.Equal(t, "spring-fair", e.Slug)
}
