// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/store"
)

const providersBucket = "providers"

// Manager owns the provider registry. All mutations are written through to
// badger; API keys are encrypted before they touch the store.
type Manager struct {
	bucket    *store.Bucket
	encryptor *config.CredentialEncryptor
	bus       *eventbus.Bus
	audit     *audit.Logger
	prober    *prober

	mu        sync.RWMutex
	providers map[string]*Provider // keyed by ID
}

// New creates a Manager, loading persisted providers and applying config
// seeds for names not yet present.
func New(db *store.DB, encryptor *config.CredentialEncryptor, bus *eventbus.Bus, auditLogger *audit.Logger, cfg config.ProvidersConfig) (*Manager, error) {
	m := &Manager{
		bucket:    db.Bucket(providersBucket),
		encryptor: encryptor,
		bus:       bus,
		audit:     auditLogger,
		prober:    newProber(cfg.ProbeTimeout),
		providers: make(map[string]*Provider),
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if err := m.seed(cfg.Seed); err != nil {
		return nil, fmt.Errorf("seed providers: %w", err)
	}
	m.updateGauges()

	return m, nil
}

func (m *Manager) load() error {
	return m.bucket.ForEach(func(key string, value []byte) error {
		var p Provider
		if err := json.Unmarshal(value, &p); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt provider record")
			return nil
		}
		m.providers[p.ID] = &p
		return nil
	})
}

// seed creates providers from config for type/name pairs that do not exist
// yet. Seeds never overwrite runtime edits.
func (m *Manager) seed(seeds []config.ProviderSeed) error {
	for _, s := range seeds {
		typ, err := ParseType(s.Type)
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Name, err)
		}
		if m.findByName(typ, s.Name) != nil {
			continue
		}
		_, err = m.Configure(context.Background(), Input{
			Type:    typ,
			Name:    s.Name,
			BaseURL: s.BaseURL,
			APIKey:  s.APIKey,
			Model:   s.Model,
			Enabled: s.Enabled,
			Default: s.Default,
		})
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Name, err)
		}
	}
	return nil
}

// List returns providers, optionally filtered by type, sorted by name.
func (m *Manager) List(typ Type) []*Provider {
	m.mu.RLock()
	out := make([]*Provider, 0, len(m.providers))
	for _, p := range m.providers {
		if typ != "" && p.Type != typ {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns a provider by ID.
func (m *Manager) Get(id string) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetDefault returns the default provider of a category, or ErrNotFound
// when none is set.
func (m *Manager) GetDefault(typ Type) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.providers {
		if p.Type == typ && p.Default {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Configure creates or updates a provider, matching existing providers by
// type and name. An empty APIKey keeps the stored key. Disabling the
// default provider of a category clears the default; no other provider is
// elected in its place.
func (m *Manager) Configure(ctx context.Context, in Input) (*Provider, error) {
	if _, err := ParseType(string(in.Type)); err != nil {
		return nil, err
	}
	if in.Name == "" || in.BaseURL == "" {
		return nil, fmt.Errorf("%w: name and base_url are required", ErrInvalidProvider)
	}
	if in.Default && !in.Enabled {
		return nil, fmt.Errorf("%w: a disabled provider cannot be the default", ErrInvalidProvider)
	}

	keyRef := ""
	if in.APIKey != "" {
		if m.encryptor == nil {
			return nil, fmt.Errorf("%w: no credential encryptor configured", ErrInvalidProvider)
		}
		enc, err := m.encryptor.Encrypt(in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt api key: %w", err)
		}
		keyRef = enc
	}

	now := time.Now()

	m.mu.Lock()
	existing := m.findByName(in.Type, in.Name)

	var p Provider
	if existing != nil {
		p = *existing
		p.BaseURL = in.BaseURL
		p.Model = in.Model
		p.Enabled = in.Enabled
		if keyRef != "" {
			p.APIKeyRef = keyRef
		}
		if !in.Enabled {
			p.Default = false
		}
	} else {
		p = Provider{
			ID:        uuid.NewString(),
			Type:      in.Type,
			Name:      in.Name,
			BaseURL:   in.BaseURL,
			APIKeyRef: keyRef,
			Model:     in.Model,
			Enabled:   in.Enabled,
			CreatedAt: now,
		}
	}
	p.UpdatedAt = now

	var dirty []*Provider
	if in.Default {
		p.Default = true
		dirty = m.clearDefaultLocked(p.Type, p.ID)
	}

	m.providers[p.ID] = &p
	m.mu.Unlock()

	for _, d := range dirty {
		if err := m.bucket.Put(d.ID, d); err != nil {
			return nil, fmt.Errorf("persist provider %s: %w", d.Name, err)
		}
	}
	if err := m.bucket.Put(p.ID, &p); err != nil {
		return nil, fmt.Errorf("persist provider %s: %w", p.Name, err)
	}
	m.updateGauges()

	m.publish(eventbus.TopicProviderChanged, &p)
	if m.audit != nil {
		verb := "configured"
		if existing != nil {
			verb = "updated"
		}
		m.audit.LogProviderChange(ctx, audit.SystemActor(), audit.Source{},
			audit.EventTypeProviderChanged, p.ID, string(p.Type),
			fmt.Sprintf("provider %s/%s %s", p.Type, p.Name, verb))
	}

	logging.Info().
		Str("provider", p.Name).
		Str("type", string(p.Type)).
		Bool("enabled", p.Enabled).
		Bool("default", p.Default).
		Msg("Provider configured")

	cp := p
	return &cp, nil
}

// SetDefault makes the provider the single default of its category. The
// provider must be enabled.
func (m *Manager) SetDefault(ctx context.Context, id string) (*Provider, error) {
	m.mu.Lock()
	p, ok := m.providers[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !p.Enabled {
		m.mu.Unlock()
		return nil, ErrDisabled
	}

	dirty := m.clearDefaultLocked(p.Type, p.ID)
	p.Default = true
	p.UpdatedAt = time.Now()
	updated := *p
	m.mu.Unlock()

	for _, d := range dirty {
		if err := m.bucket.Put(d.ID, d); err != nil {
			return nil, fmt.Errorf("persist provider %s: %w", d.Name, err)
		}
	}
	if err := m.bucket.Put(updated.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist provider %s: %w", updated.Name, err)
	}

	m.publish(eventbus.TopicProviderChanged, &updated)
	if m.audit != nil {
		m.audit.LogProviderChange(ctx, audit.SystemActor(), audit.Source{},
			audit.EventTypeProviderDefault, updated.ID, string(updated.Type),
			fmt.Sprintf("provider %s/%s set as default", updated.Type, updated.Name))
	}

	return &updated, nil
}

// Delete removes a provider.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	p, ok := m.providers[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.providers, id)
	removed := *p
	m.mu.Unlock()

	if err := m.bucket.Delete(id); err != nil {
		return fmt.Errorf("delete provider %s: %w", removed.Name, err)
	}
	m.updateGauges()

	m.publish(eventbus.TopicProviderChanged, &removed)
	if m.audit != nil {
		m.audit.LogProviderChange(ctx, audit.SystemActor(), audit.Source{},
			audit.EventTypeProviderChanged, removed.ID, string(removed.Type),
			fmt.Sprintf("provider %s/%s removed", removed.Type, removed.Name))
	}
	return nil
}

// Validate probes the provider endpoint through its circuit breaker and
// reports reachability, latency, and any advertised models.
func (m *Manager) Validate(ctx context.Context, id string) (*ValidationResult, error) {
	m.mu.RLock()
	p, ok := m.providers[id]
	var cp Provider
	if ok {
		cp = *p
	}
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !cp.Enabled {
		return nil, ErrDisabled
	}

	apiKey := ""
	if cp.APIKeyRef != "" && m.encryptor != nil {
		key, err := m.encryptor.Decrypt(cp.APIKeyRef)
		if err != nil {
			return nil, fmt.Errorf("decrypt api key for %s: %w", cp.Name, err)
		}
		apiKey = key
	}

	return m.prober.probe(ctx, &cp, apiKey)
}

// clearDefaultLocked unsets Default on every other provider of the type and
// returns the modified entries for persistence. Callers hold the write lock.
func (m *Manager) clearDefaultLocked(typ Type, exceptID string) []*Provider {
	var dirty []*Provider
	for _, other := range m.providers {
		if other.Type == typ && other.ID != exceptID && other.Default {
			other.Default = false
			cp := *other
			dirty = append(dirty, &cp)
		}
	}
	return dirty
}

// findByName requires at least a read lock when called after construction.
func (m *Manager) findByName(typ Type, name string) *Provider {
	for _, p := range m.providers {
		if p.Type == typ && p.Name == name {
			return p
		}
	}
	return nil
}

func (m *Manager) publish(topic string, p *Provider) {
	if m.bus == nil {
		return
	}
	evt := map[string]string{
		"id":   p.ID,
		"type": string(p.Type),
		"name": p.Name,
	}
	if err := m.bus.Publish(topic, evt); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish provider event")
	}
}

func (m *Manager) updateGauges() {
	counts := map[Type]int{TypeLLM: 0, TypeAudio: 0, TypeMemory: 0}

	m.mu.RLock()
	for _, p := range m.providers {
		counts[p.Type]++
	}
	m.mu.RUnlock()

	for typ, n := range counts {
		metrics.ProvidersConfigured.WithLabelValues(string(typ)).Set(float64(n))
	}
}
