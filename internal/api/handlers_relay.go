// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/websocket"
)

// handleRelaySource upgrades a source connection for an audio stream. One
// source per stream; a second attach is rejected at the relay layer.
func (h *Handlers) handleRelaySource(w http.ResponseWriter, r *http.Request) {
	h.RelayHandler.ServeSource(w, r, chi.URLParam(r, "stream"))
}

// handleRelayListen upgrades a listener connection for an audio stream.
func (h *Handlers) handleRelayListen(w http.ResponseWriter, r *http.Request) {
	h.RelayHandler.ServeListener(w, r, chi.URLParam(r, "stream"))
}

// handleRelayStats reports per-stream source/listener/frame counters.
func (h *Handlers) handleRelayStats(w http.ResponseWriter, r *http.Request) {
	stats := h.RelayHub.Stats()
	respondList(w, r, stats, int64(len(stats)), len(stats), 0)
}

// handleEventsWS upgrades a UI client onto the lifecycle event stream.
func (h *Handlers) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.EventsHub, w, r)
}
