// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package relay

import (
	"sort"
	"sync"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// Frame drop and disconnect reasons used as metric labels.
const (
	dropSlowListener = "slow_listener"
	dropClosed       = "closed"

	disconnectBreaker      = "breaker"
	disconnectClient       = "client"
	disconnectWriteError   = "write_error"
	disconnectStreamClosed = "stream_closed"
)

// Stream is one relay channel: at most one source, any number of listeners
// up to the configured cap. Frames flow source to listeners only.
type Stream struct {
	name string
	cfg  config.RelayConfig

	mu        sync.Mutex
	hasSource bool
	listeners map[uint64]*Listener
	closed    bool
	nextID    uint64

	// sweepMark is set by the first sweep that finds the stream idle and
	// cleared on every attach or hand-out. Only a stream still marked on
	// the next sweep is collected, so a handle returned by Hub.Stream is
	// never swept out from under its caller before the attach lands.
	sweepMark bool
}

func newStream(name string, cfg config.RelayConfig) *Stream {
	return &Stream{
		name:      name,
		cfg:       cfg,
		listeners: make(map[uint64]*Listener),
	}
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// StreamStats is a point-in-time snapshot of one stream.
type StreamStats struct {
	Name      string `json:"name"`
	HasSource bool   `json:"has_source"`
	Listeners int    `json:"listeners"`
}

// Stats snapshots the stream.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		Name:      s.name,
		HasSource: s.hasSource,
		Listeners: len(s.listeners),
	}
}

// AttachSource claims the stream's source slot.
func (s *Stream) AttachSource() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrHubClosed
	}
	if s.hasSource {
		return ErrSourceAttached
	}
	s.hasSource = true
	s.sweepMark = false
	logging.Info().Str("stream", s.name).Msg("Relay source attached")
	return nil
}

// DetachSource releases the source slot. Listeners stay connected and wait
// for the next source.
func (s *Stream) DetachSource() {
	s.mu.Lock()
	s.hasSource = false
	s.mu.Unlock()
	logging.Info().Str("stream", s.name).Msg("Relay source detached")
}

// AddListener registers a listener and returns its handle.
func (s *Stream) AddListener() (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrHubClosed
	}
	if len(s.listeners) >= s.cfg.MaxListeners {
		return nil, ErrTooManyListeners
	}

	s.nextID++
	l := newListener(s.nextID, s, s.cfg)
	s.listeners[l.id] = l
	s.sweepMark = false
	metrics.RelayListeners.WithLabelValues(s.name).Set(float64(len(s.listeners)))

	logging.Info().
		Str("stream", s.name).
		Uint64("listener", l.id).
		Int("listeners", len(s.listeners)).
		Msg("Relay listener attached")
	return l, nil
}

// removeListener detaches a listener and closes its frame channel.
func (s *Stream) removeListener(id uint64, reason string) {
	s.mu.Lock()
	l, ok := s.listeners[id]
	if ok {
		delete(s.listeners, id)
	}
	remaining := len(s.listeners)
	s.mu.Unlock()

	if !ok {
		return
	}
	l.closeFrames()
	metrics.RelayListeners.WithLabelValues(s.name).Set(float64(remaining))
	metrics.RelayListenerDisconnects.WithLabelValues(reason).Inc()

	logging.Info().
		Str("stream", s.name).
		Uint64("listener", id).
		Str("reason", reason).
		Msg("Relay listener detached")
}

// Broadcast fans a frame out to every listener best-effort. A listener with
// a full buffer drops the frame; the stream never blocks on a listener.
func (s *Stream) Broadcast(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.RelayFramesDropped.WithLabelValues(s.name, dropClosed).Inc()
		return
	}
	listeners := make([]*Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	// Deterministic fan-out order; delivery is still best-effort.
	sort.Slice(listeners, func(i, j int) bool { return listeners[i].id < listeners[j].id })

	forwarded := 0
	for _, l := range listeners {
		if l.offer(frame) {
			forwarded++
		} else {
			metrics.RelayFramesDropped.WithLabelValues(s.name, dropSlowListener).Inc()
		}
	}
	if forwarded > 0 {
		metrics.RelayFramesForwarded.WithLabelValues(s.name).Add(float64(forwarded))
		metrics.RelayBytesRelayed.WithLabelValues(s.name).Add(float64(forwarded * len(frame)))
	}
}

// touch clears the idle mark so the stream survives the next sweep.
func (s *Stream) touch() {
	s.mu.Lock()
	s.sweepMark = false
	s.mu.Unlock()
}

// sweepable marks an idle stream and reports whether the previous sweep
// had already marked it. A busy stream clears its mark.
func (s *Stream) sweepable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSource || len(s.listeners) > 0 {
		s.sweepMark = false
		return false
	}
	if s.sweepMark {
		return true
	}
	s.sweepMark = true
	return false
}

// close drops the source and disconnects every listener.
func (s *Stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.hasSource = false
	listeners := make([]*Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listeners = make(map[uint64]*Listener)
	s.mu.Unlock()

	for _, l := range listeners {
		l.closeFrames()
		metrics.RelayListenerDisconnects.WithLabelValues(disconnectStreamClosed).Inc()
	}
	metrics.RelayListeners.DeleteLabelValues(s.name)
}
