// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package memory manages pluggable memory sources and aggregates the
// tool schemas the assistant exposes to its LLM provider.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/store"
)

const sourcesBucket = "memory_sources"

var (
	// ErrNotFound is returned when no source matches the given ID.
	ErrNotFound = errors.New("memory source not found")

	// ErrInvalidSource is returned when a registration is missing required
	// fields or carries a malformed tool schema.
	ErrInvalidSource = errors.New("invalid memory source")
)

// Source is a registered memory plugin. ToolSchema holds the provider-
// facing tool definitions the source contributes while enabled.
type Source struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Endpoint    string          `json:"endpoint"`
	ToolSchema  json.RawMessage `json:"tool_schema,omitempty"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SourceTools pairs a source with its contributed tool schema.
type SourceTools struct {
	SourceID string          `json:"source_id"`
	Name     string          `json:"name"`
	Schema   json.RawMessage `json:"schema"`
}

// Manager stores memory sources in badger with an in-memory working set.
type Manager struct {
	bucket *store.Bucket

	mu      sync.RWMutex
	sources map[string]*Source
}

// New creates a Manager, loading persisted sources.
func New(db *store.DB) (*Manager, error) {
	m := &Manager{
		bucket:  db.Bucket(sourcesBucket),
		sources: make(map[string]*Source),
	}

	err := m.bucket.ForEach(func(key string, value []byte) error {
		var src Source
		if err := json.Unmarshal(value, &src); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt memory source record")
			return nil
		}
		m.sources[src.ID] = &src
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load memory sources: %w", err)
	}
	return m, nil
}

// Register adds a source or updates the one with the same name. New
// sources start enabled.
func (m *Manager) Register(ctx context.Context, src *Source) (*Source, error) {
	if src == nil || src.Name == "" || src.Endpoint == "" {
		return nil, fmt.Errorf("%w: name and endpoint are required", ErrInvalidSource)
	}
	if len(src.ToolSchema) > 0 && !json.Valid(src.ToolSchema) {
		return nil, fmt.Errorf("%w: tool schema is not valid JSON", ErrInvalidSource)
	}

	now := time.Now()

	m.mu.Lock()
	var existing *Source
	for _, s := range m.sources {
		if s.Name == src.Name {
			existing = s
			break
		}
	}
	if existing != nil {
		src.ID = existing.ID
		src.CreatedAt = existing.CreatedAt
		src.Enabled = existing.Enabled
	} else {
		src.ID = uuid.NewString()
		src.CreatedAt = now
		src.Enabled = true
	}
	src.UpdatedAt = now

	stored := *src
	m.sources[stored.ID] = &stored
	m.mu.Unlock()

	if err := m.bucket.Put(stored.ID, &stored); err != nil {
		return nil, fmt.Errorf("persist memory source %s: %w", stored.Name, err)
	}

	logging.Info().Str("source", stored.Name).Str("endpoint", stored.Endpoint).Msg("Memory source registered")

	cp := stored
	return &cp, nil
}

// Get returns a source by ID.
func (m *Manager) Get(id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *src
	return &cp, nil
}

// List returns all sources sorted by name.
func (m *Manager) List() []*Source {
	m.mu.RLock()
	out := make([]*Source, 0, len(m.sources))
	for _, src := range m.sources {
		cp := *src
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled toggles a source. Disabled sources keep their registration
// but stop contributing tools.
func (m *Manager) SetEnabled(ctx context.Context, id string, enabled bool) (*Source, error) {
	m.mu.Lock()
	src, ok := m.sources[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	src.Enabled = enabled
	src.UpdatedAt = time.Now()
	updated := *src
	m.mu.Unlock()

	if err := m.bucket.Put(updated.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist memory source %s: %w", updated.Name, err)
	}

	logging.Info().Str("source", updated.Name).Bool("enabled", enabled).Msg("Memory source toggled")
	return &updated, nil
}

// Remove deletes a source from the registry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	src, ok := m.sources[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sources, id)
	name := src.Name
	m.mu.Unlock()

	if err := m.bucket.Delete(id); err != nil {
		return fmt.Errorf("delete memory source %s: %w", name, err)
	}
	return nil
}

// Tools aggregates the tool schemas of all enabled sources, sorted by
// source name. Sources without a schema are skipped.
func (m *Manager) Tools() []SourceTools {
	m.mu.RLock()
	out := make([]SourceTools, 0, len(m.sources))
	for _, src := range m.sources {
		if !src.Enabled || len(src.ToolSchema) == 0 {
			continue
		}
		out = append(out, SourceTools{
			SourceID: src.ID,
			Name:     src.Name,
			Schema:   src.ToolSchema,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
