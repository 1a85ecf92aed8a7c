// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package unode manages the worker nodes registered with this leader
// instance: registration, heartbeat liveness, and container deploys.
package unode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/docker"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/store"
)

const nodesBucket = "unodes"

// Status is a node's liveness state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// offlineMissedHeartbeats is how many heartbeat intervals may elapse
// before a node is flagged offline.
const offlineMissedHeartbeats = 3

var (
	// ErrNotFound is returned when no node matches the given ID.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidNode is returned when a registration is missing required
	// fields.
	ErrInvalidNode = errors.New("invalid node registration")

	// ErrNoDocker is returned for deploys when no Docker client is wired.
	ErrNoDocker = errors.New("docker is not configured")
)

// Node is a registered worker node.
type Node struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Hostname      string    `json:"hostname"`
	TailscaleIP   string    `json:"tailscale_ip,omitempty"`
	Roles         []string  `json:"roles,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Status        Status    `json:"status"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Manager is the leader-side node registry.
type Manager struct {
	bucket *store.Bucket
	bus    *eventbus.Bus
	audit  *audit.Logger
	docker *docker.Client

	heartbeatInterval time.Duration

	mu    sync.RWMutex
	nodes map[string]*Node

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Manager, loading persisted nodes. dockerClient may be nil
// when container deploys are not available.
func New(db *store.DB, bus *eventbus.Bus, auditLogger *audit.Logger, dockerClient *docker.Client, cfg config.UNodeConfig) (*Manager, error) {
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	m := &Manager{
		bucket:            db.Bucket(nodesBucket),
		bus:               bus,
		audit:             auditLogger,
		docker:            dockerClient,
		heartbeatInterval: interval,
		nodes:             make(map[string]*Node),
		now:               time.Now,
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("load u-nodes: %w", err)
	}
	m.updateGauges()
	return m, nil
}

func (m *Manager) load() error {
	return m.bucket.ForEach(func(key string, value []byte) error {
		var node Node
		if err := json.Unmarshal(value, &node); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt node record")
			return nil
		}
		m.nodes[node.ID] = &node
		return nil
	})
}

// Register adds a node or refreshes the registration with the same name.
func (m *Manager) Register(ctx context.Context, node *Node) (*Node, error) {
	if node == nil || node.Name == "" || node.Hostname == "" {
		return nil, fmt.Errorf("%w: name and hostname are required", ErrInvalidNode)
	}

	now := m.now()

	m.mu.Lock()
	var existing *Node
	for _, n := range m.nodes {
		if n.Name == node.Name {
			existing = n
			break
		}
	}
	if existing != nil {
		node.ID = existing.ID
		node.RegisteredAt = existing.RegisteredAt
	} else {
		node.ID = uuid.NewString()
		node.RegisteredAt = now
	}
	node.LastHeartbeat = now
	node.Status = StatusOnline

	stored := *node
	m.nodes[stored.ID] = &stored
	m.mu.Unlock()

	if err := m.bucket.Put(stored.ID, &stored); err != nil {
		return nil, fmt.Errorf("persist node %s: %w", stored.Name, err)
	}
	m.updateGauges()

	m.publish(eventbus.TopicNodeOnline, &stored)
	if m.audit != nil {
		m.audit.LogNodeEvent(ctx, audit.EventTypeNodeRegistered, stored.ID, stored.Name,
			fmt.Sprintf("u-node %s registered from %s", stored.Name, stored.Hostname))
	}

	logging.Info().
		Str("node", stored.Name).
		Str("hostname", stored.Hostname).
		Str("tailscale_ip", stored.TailscaleIP).
		Msg("u-node registered")

	result := stored
	return &result, nil
}

// Heartbeat records a liveness signal and brings an offline node back.
func (m *Manager) Heartbeat(ctx context.Context, id string) (*Node, error) {
	now := m.now()

	m.mu.Lock()
	node, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	wasOffline := node.Status == StatusOffline
	node.LastHeartbeat = now
	node.Status = StatusOnline
	updated := *node
	m.mu.Unlock()

	if err := m.bucket.Put(updated.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist node heartbeat: %w", err)
	}

	if wasOffline {
		m.updateGauges()
		m.publish(eventbus.TopicNodeOnline, &updated)
		logging.Info().Str("node", updated.Name).Msg("u-node back online")
	}
	return &updated, nil
}

// Get returns a node by ID.
func (m *Manager) Get(id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *node
	return &cp, nil
}

// List returns all nodes sorted by name.
func (m *Manager) List() []*Node {
	m.mu.RLock()
	out := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		cp := *node
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove deletes a node from the registry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	node, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.nodes, id)
	removed := *node
	m.mu.Unlock()

	if err := m.bucket.Delete(id); err != nil {
		return fmt.Errorf("delete node %s: %w", removed.Name, err)
	}
	m.updateGauges()

	m.publish(eventbus.TopicNodeOffline, &removed)
	if m.audit != nil {
		m.audit.LogNodeEvent(ctx, audit.EventTypeNodeOffline, removed.ID, removed.Name,
			fmt.Sprintf("u-node %s removed", removed.Name))
	}
	return nil
}

// EvaluateLiveness flags nodes offline after three missed heartbeat
// intervals. Only heartbeats bring a node back online.
func (m *Manager) EvaluateLiveness(ctx context.Context) {
	now := m.now()
	cutoff := time.Duration(offlineMissedHeartbeats) * m.heartbeatInterval

	var flagged []Node
	m.mu.Lock()
	for _, node := range m.nodes {
		if node.Status == StatusOnline && now.Sub(node.LastHeartbeat) > cutoff {
			node.Status = StatusOffline
			flagged = append(flagged, *node)
		}
	}
	m.mu.Unlock()

	for i := range flagged {
		node := &flagged[i]
		if err := m.bucket.Put(node.ID, node); err != nil {
			logging.Error().Str("node", node.Name).Err(err).Msg("Failed to persist offline transition")
		}
		m.publish(eventbus.TopicNodeOffline, node)
		if m.audit != nil {
			m.audit.LogNodeEvent(ctx, audit.EventTypeNodeOffline, node.ID, node.Name,
				fmt.Sprintf("u-node %s offline after %d missed heartbeats", node.Name, offlineMissedHeartbeats))
		}
		logging.Warn().Str("node", node.Name).Msg("u-node flagged offline")
	}
	if len(flagged) > 0 {
		m.updateGauges()
	}
}

// Deploy pulls the spec's image and runs it on the local Docker daemon.
// The leader deploys for itself; remote execution belongs to the node
// agent, which polls for assigned work.
func (m *Manager) Deploy(ctx context.Context, nodeID string, spec *docker.ContainerSpec) (string, error) {
	node, err := m.Get(nodeID)
	if err != nil {
		return "", err
	}
	if m.docker == nil {
		return "", ErrNoDocker
	}
	if spec == nil || spec.Image == "" {
		return "", fmt.Errorf("%w: deploy spec requires an image", ErrInvalidNode)
	}
	spec.Owner = "unode"
	if spec.Labels == nil {
		spec.Labels = make(map[string]string)
	}
	spec.Labels["io.ushadow.unode"] = node.ID

	if err := m.docker.EnsureImage(ctx, spec.Image); err != nil {
		metrics.RecordNodeDeployment(err)
		return "", err
	}
	containerID, err := m.docker.RunContainer(ctx, spec)
	metrics.RecordNodeDeployment(err)
	if err != nil {
		return "", err
	}

	if m.audit != nil {
		m.audit.LogNodeEvent(ctx, audit.EventTypeInstanceDeployed, node.ID, node.Name,
			fmt.Sprintf("deployed %s to u-node %s", spec.Image, node.Name))
	}
	logging.Info().
		Str("node", node.Name).
		Str("image", spec.Image).
		Str("container", containerID[:12]).
		Msg("Deployment started")
	return containerID, nil
}

func (m *Manager) publish(topic string, node *Node) {
	if m.bus == nil {
		return
	}
	evt := map[string]string{"id": node.ID, "name": node.Name, "status": string(node.Status)}
	if err := m.bus.Publish(topic, evt); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish node event")
	}
}

func (m *Manager) updateGauges() {
	counts := map[Status]int{StatusOnline: 0, StatusOffline: 0}

	m.mu.RLock()
	for _, node := range m.nodes {
		counts[node.Status]++
	}
	m.mu.RUnlock()

	for status, n := range counts {
		metrics.NodesRegistered.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Monitor periodically evaluates node liveness under the supervisor.
type Monitor struct {
	manager  *Manager
	interval time.Duration
}

// NewMonitor creates the liveness monitor.
func NewMonitor(manager *Manager, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{manager: manager, interval: interval}
}

// Serve runs the evaluation loop until the context is cancelled.
func (m *Monitor) Serve(ctx context.Context) error {
	logger := logging.WithComponent("unode-monitor")
	logger.Info().Dur("interval", m.interval).Msg("u-node monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.manager.EvaluateLiveness(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("u-node monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.manager.EvaluateLiveness(ctx)
		}
	}
}

// String identifies the service in supervisor logs.
func (m *Monitor) String() string { return "unode-monitor" }
