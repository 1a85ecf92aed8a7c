// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ushadow-io/ushadow/internal/logging"
)

// DefaultMonitorInterval is used when the config does not set one.
const DefaultMonitorInterval = 10 * time.Second

// Monitor periodically re-evaluates service health. It implements
// suture.Service so it can run under the application supervisor tree.
type Monitor struct {
	registry *Registry
	interval time.Duration
	logger   zerolog.Logger
}

// NewMonitor creates a monitor for the registry. A non-positive interval
// falls back to DefaultMonitorInterval.
func NewMonitor(registry *Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		logger:   logging.WithComponent("registry-monitor"),
	}
}

// Serve runs the evaluation loop until the context is cancelled.
func (m *Monitor) Serve(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.interval).Msg("Registry monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Catch up immediately on stale persisted state.
	m.registry.EvaluateHealth(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Registry monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.registry.EvaluateHealth(ctx)
		}
	}
}

// String identifies the service in supervisor logs.
func (m *Monitor) String() string { return "registry-monitor" }
