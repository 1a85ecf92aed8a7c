// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ushadow-io/ushadow/internal/eventbus"
)

// runHub starts a hub's Serve loop and returns a cancel function that
// stops it and waits for exit.
func runHub(t *testing.T, h *Hub) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve returned %v, want context.Canceled", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop after cancel")
		}
	})
	return cancel
}

// fakeClient registers a client with no underlying connection so tests
// can observe the send queue directly.
func fakeClient(h *Hub) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		send: make(chan Message, 8),
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := NewHub(nil)
	runHub(t, h)

	a := fakeClient(h)
	b := fakeClient(h)
	h.Register <- a
	h.Register <- b
	waitForClients(t, h, 2)

	h.Broadcast(Message{Type: MessageTypeEvent, Topic: "service.registered"})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Topic != "service.registered" {
				t.Errorf("topic = %s", msg.Topic)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestUnregisterClosesSendQueue(t *testing.T) {
	h := NewHub(nil)
	runHub(t, h)

	c := fakeClient(h)
	h.Register <- c
	waitForClients(t, h, 1)

	h.Unregister <- c
	waitForClients(t, h, 0)

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed send queue")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send queue not closed")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub(nil)
	runHub(t, h)

	slow := &Client{id: clientIDCounter.Add(1), hub: h, send: make(chan Message)} // unbuffered, never read
	healthy := fakeClient(h)
	h.Register <- slow
	h.Register <- healthy
	waitForClients(t, h, 2)

	h.Broadcast(Message{Type: MessageTypeEvent, Topic: "node.online"})
	waitForClients(t, h, 1)

	select {
	case msg := <-healthy.send:
		if msg.Topic != "node.online" {
			t.Errorf("topic = %s", msg.Topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("healthy client did not receive broadcast")
	}
}

func TestShutdownClosesAllClients(t *testing.T) {
	h := NewHub(nil)
	cancel := runHub(t, h)

	c := fakeClient(h)
	h.Register <- c
	waitForClients(t, h, 1)

	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("clients not closed on shutdown")
}

func TestBusEventsAreForwarded(t *testing.T) {
	bus := eventbus.New()
	t.Cleanup(func() { bus.Close() })

	h := NewHub(bus)
	runHub(t, h)

	c := fakeClient(h)
	h.Register <- c
	waitForClients(t, h, 1)

	if err := bus.Publish(eventbus.TopicNodeOnline, map[string]string{"name": "pi-kitchen"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-c.send:
		if msg.Type != MessageTypeEvent || msg.Topic != eventbus.TopicNodeOnline {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bus event not forwarded to client")
	}
}

func TestServeWSRoundTrip(t *testing.T) {
	h := NewHub(nil)
	runHub(t, h)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitForClients(t, h, 1)

	h.Broadcast(Message{Type: MessageTypeEvent, Topic: "instance.deployed"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Topic != "instance.deployed" {
		t.Errorf("topic = %s", msg.Topic)
	}
}

func TestPingGetsPong(t *testing.T) {
	h := NewHub(nil)
	runHub(t, h)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitForClients(t, h, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("type = %s, want pong", msg.Type)
	}
}
