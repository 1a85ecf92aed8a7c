// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package registry implements the platform service registry: services
// register themselves with a TTL, send heartbeats to stay healthy, and a
// monitor demotes services whose heartbeats go stale.
package registry

import (
	"errors"
	"time"
)

// Health is the liveness state of a registered service.
type Health string

const (
	// HealthHealthy means a heartbeat arrived within the service's TTL.
	HealthHealthy Health = "healthy"

	// HealthUnhealthy means the last heartbeat is older than 2x the TTL.
	HealthUnhealthy Health = "unhealthy"

	// HealthUnknown means the last heartbeat is older than 4x the TTL.
	HealthUnknown Health = "unknown"
)

// Kinds of services the platform registers. Kind is advisory; the registry
// accepts any non-empty value so integrations can define their own.
const (
	KindBackend     = "backend"
	KindFrontend    = "frontend"
	KindIntegration = "integration"
)

var (
	// ErrNotFound is returned when no service matches the given ID or name.
	ErrNotFound = errors.New("service not found")

	// ErrInvalidService is returned when a registration is missing
	// required fields.
	ErrInvalidService = errors.New("invalid service registration")
)

// Service is a registered platform service.
type Service struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          string        `json:"kind"`
	URL           string        `json:"url"`
	Tags          []string      `json:"tags,omitempty"`
	TTL           time.Duration `json:"ttl"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	Health        Health        `json:"health"`
	RegisteredAt  time.Time     `json:"registered_at"`
}

// HeartbeatAge returns how long ago the service last heartbeat, as of now.
func (s *Service) HeartbeatAge(now time.Time) time.Duration {
	return now.Sub(s.LastHeartbeat)
}

// healthForAge derives the health state from a heartbeat age and TTL.
// The thresholds are 2x TTL for unhealthy and 4x TTL for unknown.
func healthForAge(age, ttl time.Duration) Health {
	switch {
	case age > 4*ttl:
		return HealthUnknown
	case age > 2*ttl:
		return HealthUnhealthy
	default:
		return HealthHealthy
	}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Kind   string
	Health Health
}

func (f ListFilter) matches(s *Service) bool {
	if f.Kind != "" && s.Kind != f.Kind {
		return false
	}
	if f.Health != "" && s.Health != f.Health {
		return false
	}
	return true
}

// Event is the payload published on service bus topics.
type Event struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Health Health `json:"health"`
}
