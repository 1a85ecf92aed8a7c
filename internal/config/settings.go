// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Manager holds runtime-mutable settings in a YAML overlay file, separate
// from the immutable layered Config. Keys are dot-delimited paths
// ("ui.theme", "assistant.wake_word"). Every mutation persists to disk
// before returning.
type Manager struct {
	mu   sync.RWMutex
	path string
	k    *koanf.Koanf

	// onChange callbacks run after a successful Set or Unset, outside
	// the write lock.
	onChange []func(key string)
}

// NewManager creates a settings manager backed by the YAML file at path.
// A missing file is not an error; it is created on first write.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path cannot be empty")
	}

	m := &Manager{
		path: path,
		k:    koanf.New("."),
	}

	if _, err := os.Stat(path); err == nil {
		if err := m.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	return m, nil
}

// Get returns the value at key, reporting whether it exists.
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.k.Exists(key) {
		return nil, false
	}
	return m.k.Get(key), true
}

// All returns a copy of every setting as a flat map of dot-paths.
func (m *Manager) All() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k.All()
}

// Set stores value at key and persists the overlay file.
func (m *Manager) Set(key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("settings key cannot be empty")
	}

	m.mu.Lock()
	if err := m.k.Set(key, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	err := m.save()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.notify(key)
	return nil
}

// Unset removes key and persists the overlay file. Unsetting a missing
// key is a no-op.
func (m *Manager) Unset(key string) error {
	m.mu.Lock()
	if !m.k.Exists(key) {
		m.mu.Unlock()
		return nil
	}
	m.k.Delete(key)
	err := m.save()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.notify(key)
	return nil
}

// OnChange registers a callback invoked with the key after every
// successful mutation. Must be called before concurrent use.
func (m *Manager) OnChange(fn func(key string)) {
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) notify(key string) {
	for _, fn := range m.onChange {
		fn(key)
	}
}

// save marshals the settings to YAML and writes them atomically via a
// temp file rename. Caller holds m.mu.
func (m *Manager) save() error {
	data, err := m.k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close settings file: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
