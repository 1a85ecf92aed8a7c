// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package instance manages service instances created from the built-in
// template catalog.
package instance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/docker"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/store"
)

const instancesBucket = "instances"

// Status is an instance's lifecycle state.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

var (
	// ErrNotFound is returned when no instance matches the given ID.
	ErrNotFound = errors.New("instance not found")

	// ErrTemplateNotFound is returned for unknown template IDs.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrMissingField is returned when a required template field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrNotRunnable is returned when Start/Stop is called on an instance
	// whose template has no container image.
	ErrNotRunnable = errors.New("instance template has no image")

	// ErrNoDocker is returned for container operations when Docker is not
	// configured.
	ErrNoDocker = errors.New("docker is not configured")
)

// Instance is a configured copy of a template.
type Instance struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	Name        string            `json:"name"`
	Config      map[string]string `json:"config"`
	Status      Status            `json:"status"`
	ContainerID string            `json:"container_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Manager stores instances and drives their container lifecycle.
type Manager struct {
	bucket    *store.Bucket
	bus       *eventbus.Bus
	docker    *docker.Client
	templates map[string]*Template

	mu        sync.RWMutex
	instances map[string]*Instance
}

// New creates a Manager with the built-in template catalog. dockerClient
// may be nil when container lifecycle operations are unavailable.
func New(db *store.DB, bus *eventbus.Bus, dockerClient *docker.Client) (*Manager, error) {
	m := &Manager{
		bucket:    db.Bucket(instancesBucket),
		bus:       bus,
		docker:    dockerClient,
		templates: make(map[string]*Template),
		instances: make(map[string]*Instance),
	}
	for _, tpl := range builtinTemplates() {
		m.templates[tpl.ID] = tpl
	}

	err := m.bucket.ForEach(func(key string, value []byte) error {
		var inst Instance
		if err := json.Unmarshal(value, &inst); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt instance record")
			return nil
		}
		m.instances[inst.ID] = &inst
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load instances: %w", err)
	}
	return m, nil
}

// ListTemplates returns the catalog sorted by ID.
func (m *Manager) ListTemplates() []*Template {
	out := make([]*Template, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTemplate returns one template by ID.
func (m *Manager) GetTemplate(id string) (*Template, error) {
	tpl, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return tpl, nil
}

// Create validates config against the template's fields and stores a new
// instance. Field defaults fill in unset values.
func (m *Manager) Create(ctx context.Context, templateID, name string, cfg map[string]string) (*Instance, error) {
	tpl, ok := m.templates[templateID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	if name == "" {
		name = tpl.Name
	}

	merged := make(map[string]string, len(cfg))
	for k, v := range cfg {
		merged[k] = v
	}
	for _, field := range tpl.Fields {
		if merged[field.Key] == "" && field.Default != "" {
			merged[field.Key] = field.Default
		}
		if field.Required && merged[field.Key] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, field.Key)
		}
	}

	inst := &Instance{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		Name:       name,
		Config:     merged,
		Status:     StatusCreated,
		CreatedAt:  time.Now(),
	}

	if err := m.bucket.Put(inst.ID, inst); err != nil {
		return nil, fmt.Errorf("persist instance %s: %w", inst.Name, err)
	}

	m.mu.Lock()
	m.instances[inst.ID] = inst
	m.mu.Unlock()

	logging.Info().Str("instance", inst.Name).Str("template", templateID).Msg("Instance created")

	cp := *inst
	return &cp, nil
}

// Get returns an instance by ID.
func (m *Manager) Get(id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

// List returns all instances sorted by creation time, newest first.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		cp := *inst
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start runs the instance's container. Non-container templates cannot be
// started.
func (m *Manager) Start(ctx context.Context, id string) (*Instance, error) {
	inst, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	tpl, ok := m.templates[inst.TemplateID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	if !tpl.HasImage() {
		return nil, ErrNotRunnable
	}
	if m.docker == nil {
		return nil, ErrNoDocker
	}

	env := make(map[string]string, len(tpl.Env)+len(inst.Config))
	for k, v := range tpl.Env {
		env[k] = v
	}
	for k, v := range inst.Config {
		env["USHADOW_"+envKey(k)] = v
	}

	spec := &docker.ContainerSpec{
		Name:   "ushadow-" + tpl.ID + "-" + inst.ID[:8],
		Image:  tpl.Image,
		Env:    env,
		Ports:  tpl.Ports,
		Owner:  "instance",
		Labels: map[string]string{"io.ushadow.instance": inst.ID},
	}

	if err := m.docker.EnsureImage(ctx, spec.Image); err != nil {
		return nil, err
	}
	containerID, err := m.docker.RunContainer(ctx, spec)
	if err != nil {
		return nil, err
	}

	updated, err := m.transition(id, StatusRunning, containerID)
	if err != nil {
		return nil, err
	}
	m.publish(eventbus.TopicInstanceDeployed, updated)
	logging.Info().Str("instance", updated.Name).Str("container", containerID[:12]).Msg("Instance started")
	return updated, nil
}

// Stop stops and removes the instance's container.
func (m *Manager) Stop(ctx context.Context, id string) (*Instance, error) {
	inst, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if inst.ContainerID != "" {
		if m.docker == nil {
			return nil, ErrNoDocker
		}
		if err := m.docker.StopContainer(ctx, inst.ContainerID, 10*time.Second); err != nil {
			logging.Warn().Str("instance", inst.Name).Err(err).Msg("Stop container failed, removing anyway")
		}
		if err := m.docker.RemoveContainer(ctx, inst.ContainerID, true); err != nil {
			return nil, fmt.Errorf("remove container for %s: %w", inst.Name, err)
		}
	}

	updated, err := m.transition(id, StatusStopped, "")
	if err != nil {
		return nil, err
	}
	m.publish(eventbus.TopicInstanceStopped, updated)
	logging.Info().Str("instance", updated.Name).Msg("Instance stopped")
	return updated, nil
}

// Delete stops a running instance and removes it from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	inst, err := m.Get(id)
	if err != nil {
		return err
	}
	if inst.Status == StatusRunning {
		if _, err := m.Stop(ctx, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.instances, id)
	m.mu.Unlock()

	if err := m.bucket.Delete(id); err != nil {
		return fmt.Errorf("delete instance %s: %w", inst.Name, err)
	}
	logging.Info().Str("instance", inst.Name).Msg("Instance deleted")
	return nil
}

func (m *Manager) transition(id string, status Status, containerID string) (*Instance, error) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	inst.Status = status
	inst.ContainerID = containerID
	updated := *inst
	m.mu.Unlock()

	if err := m.bucket.Put(updated.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist instance %s: %w", updated.Name, err)
	}
	return &updated, nil
}

func (m *Manager) publish(topic string, inst *Instance) {
	if m.bus == nil {
		return
	}
	evt := map[string]string{
		"id":       inst.ID,
		"template": inst.TemplateID,
		"name":     inst.Name,
		"status":   string(inst.Status),
	}
	if err := m.bus.Publish(topic, evt); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish instance event")
	}
}

// envKey converts a config key like "api_token" to "API_TOKEN".
func envKey(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case c == '-' || c == '.':
			out[i] = '_'
		default:
			out[i] = c
		}
	}
	return string(out)
}
