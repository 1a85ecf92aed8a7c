// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package websocket streams backend events to connected UI clients.
//
// The Hub subscribes to the in-process event bus and forwards service,
// provider, node, instance, settings, and relay lifecycle events as JSON
// messages over websocket connections. Each client gets a buffered send
// queue; clients that cannot keep up are disconnected rather than
// allowed to block the fan-out loop.
//
// The hub runs as a supervised service: Serve blocks until its context
// is cancelled, then closes every client and returns, so a supervisor
// restart never leaves orphaned connections.
package websocket
