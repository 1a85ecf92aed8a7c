// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package relay implements the audio relay: a source WebSocket connection
// per stream whose binary frames are fanned out best-effort to every
// listener on that stream. There is no backpressure and no ordering
// guarantee beyond per-connection FIFO; a slow listener drops frames, a
// persistently failing listener is disconnected by its circuit breaker.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

var (
	// ErrSourceAttached is returned when a stream already has a source.
	ErrSourceAttached = errors.New("stream already has a source")

	// ErrTooManyListeners is returned when a stream is at its listener cap.
	ErrTooManyListeners = errors.New("stream listener limit reached")

	// ErrHubClosed is returned for attaches after shutdown.
	ErrHubClosed = errors.New("relay hub is shut down")
)

// gcInterval is how often idle streams are swept.
const gcInterval = 30 * time.Second

// Hub owns all relay streams. Streams are created on first attach and
// garbage-collected once the source and every listener are gone.
type Hub struct {
	cfg config.RelayConfig
	bus *eventbus.Bus

	mu      sync.Mutex
	streams map[string]*Stream
	closed  bool
}

// NewHub creates a relay hub.
func NewHub(cfg config.RelayConfig, bus *eventbus.Bus) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MaxListeners <= 0 {
		cfg.MaxListeners = 16
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 1 << 20
	}
	return &Hub{
		cfg:     cfg,
		bus:     bus,
		streams: make(map[string]*Stream),
	}
}

// Serve runs the hub under the supervisor: it sweeps idle streams until the
// context is cancelled, then closes every stream.
func (h *Hub) Serve(ctx context.Context) error {
	logging.Info().Msg("Relay hub started")

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case <-ticker.C:
			h.sweep()
		}
	}
}

// String identifies the service in supervisor logs.
func (h *Hub) String() string { return "relay-hub" }

// Stream returns the named stream, creating it if needed.
func (h *Hub) Stream(name string) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if s, ok := h.streams[name]; ok {
		s.touch()
		return s, nil
	}

	s := newStream(name, h.cfg)
	h.streams[name] = s
	metrics.RelayStreams.Set(float64(len(h.streams)))
	h.publish(eventbus.TopicRelayStreamOpened, name)
	logging.Info().Str("stream", name).Msg("Relay stream opened")
	return s, nil
}

// StreamNames returns the active stream names, sorted.
func (h *Hub) StreamNames() []string {
	h.mu.Lock()
	names := make([]string, 0, len(h.streams))
	for name := range h.streams {
		names = append(names, name)
	}
	h.mu.Unlock()

	sort.Strings(names)
	return names
}

// Stats reports per-stream listener and source state.
func (h *Hub) Stats() []StreamStats {
	h.mu.Lock()
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	out := make([]StreamStats, 0, len(streams))
	for _, s := range streams {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sweep removes streams that have sat idle across two consecutive passes.
// The first pass only marks an idle stream, so a handle just returned by
// Stream gets a full sweep interval to attach before it can be collected.
func (h *Hub) sweep() {
	h.mu.Lock()
	var removed []string
	for name, s := range h.streams {
		if s.sweepable() {
			delete(h.streams, name)
			removed = append(removed, name)
		}
	}
	metrics.RelayStreams.Set(float64(len(h.streams)))
	h.mu.Unlock()

	for _, name := range removed {
		metrics.RelayListeners.DeleteLabelValues(name)
		h.publish(eventbus.TopicRelayStreamClosed, name)
		logging.Info().Str("stream", name).Msg("Relay stream garbage-collected")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.streams = make(map[string]*Stream)
	h.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	metrics.RelayStreams.Set(0)

	logging.Info().Int("streams_closed", len(streams)).Msg("Relay hub stopped")
}

func (h *Hub) publish(topic, stream string) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(topic, map[string]string{"stream": stream}); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish relay event")
	}
}
