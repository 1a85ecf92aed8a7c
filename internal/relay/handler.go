// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ushadow-io/ushadow/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler exposes the relay's WebSocket endpoints.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the relay HTTP handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser listeners connect cross-origin on the tailnet.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeSource handles the source connection for a stream. Binary frames
// read from the source are broadcast to the stream's listeners; the source
// slot frees when the connection drops.
func (h *Handler) ServeSource(w http.ResponseWriter, r *http.Request, streamName string) {
	stream, err := h.hub.Stream(streamName)
	if err != nil {
		httpError(w, err)
		return
	}
	if err := stream.AttachSource(); err != nil {
		httpError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		stream.DetachSource()
		logging.Warn().Str("stream", streamName).Err(err).Msg("Relay source upgrade failed")
		return
	}

	defer func() {
		stream.DetachSource()
		_ = conn.Close()
	}()

	conn.SetReadLimit(h.hub.cfg.MaxFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := keepAlive(conn)
	defer stopPing()

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Str("stream", streamName).Err(err).Msg("Relay source read error")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			// Text frames from sources are control noise; ignore them.
			continue
		}
		stream.Broadcast(frame)
	}
}

// ServeListener handles a listener connection for a stream.
func (h *Handler) ServeListener(w http.ResponseWriter, r *http.Request, streamName string) {
	stream, err := h.hub.Stream(streamName)
	if err != nil {
		httpError(w, err)
		return
	}
	listener, err := stream.AddListener()
	if err != nil {
		httpError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		listener.Close()
		logging.Warn().Str("stream", streamName).Err(err).Msg("Relay listener upgrade failed")
		return
	}

	// Drain the connection to process close frames and pongs.
	go func() {
		defer listener.Close()
		conn.SetReadLimit(1024)
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writer := &wsFrameWriter{conn: conn}
	stopPing := writer.keepAlive()
	defer stopPing()
	defer func() { _ = conn.Close() }()

	listener.Pump(writer)
}

// wsFrameWriter adapts a websocket connection to FrameWriter. The mutex
// serializes frame writes with keepalive pings; gorilla connections allow
// only one concurrent writer.
type wsFrameWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsFrameWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsFrameWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// keepAlive pings the peer until the returned stop function is called.
func (w *wsFrameWriter) keepAlive() func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.ping(); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// keepAlive pings a read-only peer until the returned stop function is
// called. Used for the source connection, whose handler never writes.
func keepAlive(conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSourceAttached):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrTooManyListeners):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ErrHubClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
