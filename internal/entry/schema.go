// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package entry

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/olegiv/ocms-content/internal/model"
)

// FieldType is the declared type of a data field.
type FieldType string

// Field types
const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldList    FieldType = "list"
	FieldMedia   FieldType = "media"
	FieldObject  FieldType = "object"
	FieldAny     FieldType = "any"
)

// DefaultTitleField is the field slugs are derived from.
const DefaultTitleField = "title"

// Field describes one data field of a collection.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// Schema holds the field rules of a collection.
type Schema struct {
	Collection string  `json:"name"`
	TitleField string  `json:"titleField,omitempty"`
	Fields     []Field `json:"fields"`
}

// titleField returns the configured title field or the default.
func (s *Schema) titleField() string {
	if s == nil || s.TitleField == "" {
		return DefaultTitleField
	}
	return s.TitleField
}

// Validate checks data against the schema: required fields must be present
// and non-empty, present fields must match their declared type.
func (s *Schema) Validate(data map[string]any) error {
	return s.validate(data, true)
}

// ValidateTypes checks only the types of present fields. Used for drafts
// of live entries, which may still be incomplete.
func (s *Schema) ValidateTypes(data map[string]any) error {
	return s.validate(data, false)
}

func (s *Schema) validate(data map[string]any, required bool) error {
	if s == nil {
		return nil
	}
	verr := &model.ValidationError{Collection: s.Collection}
	for _, f := range s.Fields {
		v, ok := data[f.Name]
		if !ok || isEmpty(v) {
			if required && f.Required {
				verr.Add(f.Name, "is required")
			}
			continue
		}
		if msg := checkType(f.Type, v); msg != "" {
			verr.Add(f.Name, "%s", msg)
		}
	}
	return verr.OrNil()
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func checkType(ft FieldType, v any) string {
	switch ft {
	case FieldText, FieldMedia:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case FieldNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32, json.Number:
		default:
			return "must be a number"
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	case FieldDate:
		switch t := v.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, t); err != nil {
				if _, err := time.Parse(time.DateOnly, t); err != nil {
					return "must be a date (YYYY-MM-DD or RFC 3339)"
				}
			}
		default:
			return "must be a date"
		}
	case FieldList:
		switch v.(type) {
		case []any, []string:
		default:
			return "must be a list"
		}
	case FieldObject:
		if _, ok := v.(map[string]any); !ok {
			return "must be an object"
		}
	}
	return ""
}

// Registry maps collection names to schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry holding schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns the built-in posts and pages collections.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Schema{
			Collection: "posts",
			Fields: []Field{
				{Name: "title", Type: FieldText, Required: true},
				{Name: "excerpt", Type: FieldText},
				{Name: "body", Type: FieldText},
				{Name: "date", Type: FieldDate},
				{Name: "cover", Type: FieldMedia},
				{Name: "media", Type: FieldList},
				{Name: "tags", Type: FieldList},
				{Name: "blocks", Type: FieldList},
			},
		},
		&Schema{
			Collection: "pages",
			Fields: []Field{
				{Name: "title", Type: FieldText, Required: true},
				{Name: "body", Type: FieldText},
				{Name: "cover", Type: FieldMedia},
				{Name: "blocks", Type: FieldList},
			},
		},
	)
}

// LoadRegistry reads schemas from a JSON file of the form
// {"collections": [{"name": "posts", "titleField": "title", "fields": [...]}]}.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	var doc struct {
		Collections []*Schema `json:"collections"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}
	r := NewRegistry()
	for _, s := range doc.Collections {
		if s.Collection == "" {
			return nil, fmt.Errorf("schema file: collection without a name")
		}
		for _, f := range s.Fields {
			if !slices.Contains([]FieldType{FieldText, FieldNumber, FieldBoolean, FieldDate, FieldList, FieldMedia, FieldObject, FieldAny, ""}, f.Type) {
				return nil, fmt.Errorf("schema file: %s.%s has unknown type %q", s.Collection, f.Name, f.Type)
			}
		}
		r.Register(s)
	}
	return r, nil
}

// Register adds or replaces a schema.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Collection] = s
}

// Get returns the schema of collection, or nil when it has no rules.
func (r *Registry) Get(collection string) *Schema {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[collection]
}

// Names returns registered collection names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
