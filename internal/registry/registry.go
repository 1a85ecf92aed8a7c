// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package registry

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

const servicesBucket = "services"

// Registry tracks registered platform services. The in-memory map is the
// authoritative working set; every mutation is written through to badger so
// registrations survive restarts.
type Registry struct {
	bucket *store.Bucket
	bus    *eventbus.Bus
	audit  *audit.Logger

	defaultTTL time.Duration

	mu       sync.RWMutex
	services map[string]*Service // keyed by ID
	byName   map[string]string   // name -> ID

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Registry backed by the given store, loading any persisted
// registrations. Persisted services start in their stored health state and
// are re-evaluated on the first monitor pass.
func New(db *store.DB, bus *eventbus.Bus, auditLogger *audit.Logger, cfg config.RegistryConfig) (*Registry, error) {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	r := &Registry{
		bucket:     db.Bucket(servicesBucket),
		bus:        bus,
		audit:      auditLogger,
		defaultTTL: ttl,
		services:   make(map[string]*Service),
		byName:     make(map[string]string),
		now:        time.Now,
	}

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("load service registry: %w", err)
	}
	r.updateGauges()

	return r, nil
}

func (r *Registry) load() error {
	return r.bucket.ForEach(func(key string, value []byte) error {
		var svc Service
		if err := json.Unmarshal(value, &svc); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt service record")
			return nil
		}
		r.services[svc.ID] = &svc
		r.byName[svc.Name] = svc.ID
		return nil
	})
}

// Register adds a service or updates the existing registration with the same
// name. Registration counts as a heartbeat: the service comes back healthy.
func (r *Registry) Register(ctx context.Context, svc *Service) (*Service, error) {
	if svc == nil || svc.Name == "" || svc.URL == "" {
		return nil, fmt.Errorf("%w: name and url are required", ErrInvalidService)
	}
	if svc.Kind == "" {
		svc.Kind = KindBackend
	}
	if svc.TTL <= 0 {
		svc.TTL = r.defaultTTL
	}

	now := r.now()

	r.mu.Lock()
	existing := r.lookupByNameLocked(svc.Name)
	if existing != nil {
		svc.ID = existing.ID
		svc.RegisteredAt = existing.RegisteredAt
	} else {
		svc.ID = uuid.NewString()
		svc.RegisteredAt = now
	}
	svc.LastHeartbeat = now
	svc.Health = HealthHealthy

	stored := *svc
	r.services[stored.ID] = &stored
	r.byName[stored.Name] = stored.ID
	r.mu.Unlock()

	if err := r.bucket.Put(stored.ID, &stored); err != nil {
		return nil, fmt.Errorf("persist service %s: %w", stored.Name, err)
	}
	r.updateGauges()

	r.publish(eventbus.TopicServiceRegistered, &stored)
	if r.audit != nil {
		verb := "registered"
		if existing != nil {
			verb = "re-registered"
		}
		r.audit.LogServiceEvent(ctx, audit.EventTypeServiceRegistered,
			stored.ID, stored.Name, "register",
			fmt.Sprintf("service %s %s at %s", stored.Name, verb, stored.URL))
	}

	logging.Info().
		Str("service", stored.Name).
		Str("kind", stored.Kind).
		Str("url", stored.URL).
		Dur("ttl", stored.TTL).
		Msg("Service registered")

	result := stored
	return &result, nil
}

// Deregister removes a service by ID.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	svc, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.services, id)
	delete(r.byName, svc.Name)
	removed := *svc
	r.mu.Unlock()

	if err := r.bucket.Delete(id); err != nil {
		return fmt.Errorf("delete service %s: %w", removed.Name, err)
	}
	r.updateGauges()

	r.publish(eventbus.TopicServiceDeregistered, &removed)
	if r.audit != nil {
		r.audit.LogServiceEvent(ctx, audit.EventTypeServiceDeregistered,
			removed.ID, removed.Name, "deregister",
			fmt.Sprintf("service %s deregistered", removed.Name))
	}

	logging.Info().Str("service", removed.Name).Msg("Service deregistered")
	return nil
}

// Heartbeat records a liveness signal. A heartbeat always restores the
// service to healthy, regardless of how stale it had become.
func (r *Registry) Heartbeat(ctx context.Context, id string) (*Service, error) {
	now := r.now()

	r.mu.Lock()
	svc, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	prev := svc.Health
	svc.LastHeartbeat = now
	svc.Health = HealthHealthy
	updated := *svc
	r.mu.Unlock()

	if err := r.bucket.Put(updated.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist heartbeat for %s: %w", updated.Name, err)
	}

	metrics.RegistryHeartbeats.WithLabelValues(updated.Name).Inc()

	if prev != HealthHealthy {
		r.recordTransition(ctx, &updated, prev)
		r.updateGauges()
	}

	return &updated, nil
}

// Get returns a service by ID.
func (r *Registry) Get(id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *svc
	return &out, nil
}

// GetByName returns a service by its registration name.
func (r *Registry) GetByName(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc := r.lookupByNameLocked(name)
	if svc == nil {
		return nil, ErrNotFound
	}
	out := *svc
	return &out, nil
}

// List returns services matching the filter, sorted by name.
func (r *Registry) List(filter ListFilter) []*Service {
	r.mu.RLock()
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		if filter.matches(svc) {
			cp := *svc
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EvaluateHealth runs one monitor pass: every service's heartbeat age is
// compared against its TTL and demotions are applied. A single pass never
// promotes; only a heartbeat restores healthy.
func (r *Registry) EvaluateHealth(ctx context.Context) {
	now := r.now()

	type transition struct {
		svc  Service
		prev Health
	}
	var transitions []transition

	r.mu.Lock()
	for _, svc := range r.services {
		next := healthForAge(svc.HeartbeatAge(now), svc.TTL)
		if next == HealthHealthy || next == svc.Health {
			continue
		}
		prev := svc.Health
		svc.Health = next
		transitions = append(transitions, transition{svc: *svc, prev: prev})
	}
	r.mu.Unlock()

	for _, t := range transitions {
		if err := r.bucket.Put(t.svc.ID, &t.svc); err != nil {
			logging.Error().Str("service", t.svc.Name).Err(err).Msg("Failed to persist health transition")
		}
		r.recordTransition(ctx, &t.svc, t.prev)
	}
	if len(transitions) > 0 {
		r.updateGauges()
	}
}

func (r *Registry) recordTransition(ctx context.Context, svc *Service, prev Health) {
	metrics.RegistryTransitions.WithLabelValues(svc.Name, string(svc.Health)).Inc()
	r.publish(eventbus.TopicServiceHealth, svc)

	if r.audit != nil {
		r.audit.LogServiceEvent(ctx, audit.EventTypeServiceHealth,
			svc.ID, svc.Name, "health_transition",
			fmt.Sprintf("service %s transitioned %s -> %s", svc.Name, prev, svc.Health))
	}

	logging.Info().
		Str("service", svc.Name).
		Str("from", string(prev)).
		Str("to", string(svc.Health)).
		Msg("Service health transition")
}

func (r *Registry) publish(topic string, svc *Service) {
	if r.bus == nil {
		return
	}
	evt := &Event{ID: svc.ID, Name: svc.Name, Kind: svc.Kind, Health: svc.Health}
	if err := r.bus.Publish(topic, evt); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish service event")
	}
}

func (r *Registry) updateGauges() {
	counts := map[Health]int{HealthHealthy: 0, HealthUnhealthy: 0, HealthUnknown: 0}

	r.mu.RLock()
	for _, svc := range r.services {
		counts[svc.Health]++
	}
	r.mu.RUnlock()

	for health, n := range counts {
		metrics.RegistryServices.WithLabelValues(string(health)).Set(float64(n))
	}
}

// lookupByNameLocked requires at least a read lock.
func (r *Registry) lookupByNameLocked(name string) *Service {
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.services[id]
}
