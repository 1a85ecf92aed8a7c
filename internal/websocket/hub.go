// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// Message types for the UI event stream.
const (
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the envelope sent to UI clients.
type Message struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// uiTopics are the bus topics forwarded to connected UI clients.
var uiTopics = []string{
	eventbus.TopicServiceRegistered,
	eventbus.TopicServiceDeregistered,
	eventbus.TopicServiceHealth,
	eventbus.TopicProviderChanged,
	eventbus.TopicNodeOnline,
	eventbus.TopicNodeOffline,
	eventbus.TopicInstanceDeployed,
	eventbus.TopicInstanceStopped,
	eventbus.TopicSettingsChanged,
	eventbus.TopicRelayStreamOpened,
	eventbus.TopicRelayStreamClosed,
}

// Hub fans bus events out to connected UI clients.
type Hub struct {
	bus *eventbus.Bus

	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a Hub fed from bus. A nil bus yields a hub that only
// relays explicit Broadcast calls.
func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		bus:        bus,
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve subscribes to the UI topics and runs the fan-out loop until the
// context is cancelled. Designed for suture supervision.
//
// Selection is priority ordered so client state is consistent before any
// message is processed: shutdown first, then lifecycle events, then
// broadcasts.
func (h *Hub) Serve(ctx context.Context) error {
	if h.bus != nil {
		for _, topic := range uiTopics {
			if err := h.feed(ctx, topic); err != nil {
				return err
			}
		}
	}

	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle (non-blocking check).
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: wait for any event.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String identifies the service in supervisor logs.
func (h *Hub) String() string { return "events-hub" }

// feed forwards one bus topic into the broadcast channel.
func (h *Hub) feed(ctx context.Context, topic string) error {
	msgs, err := h.bus.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			evt, err := eventbus.Decode(msg)
			if err != nil {
				logging.Warn().Str("topic", topic).Err(err).Msg("Dropping undecodable bus event")
				msg.Ack()
				continue
			}
			h.Broadcast(Message{Type: MessageTypeEvent, Topic: evt.Topic, Data: evt.Data})
			msg.Ack()
		}
	}()
	return nil
}

// Broadcast queues a message for delivery to all clients, dropping it if
// the queue is full.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("topic", message.Topic).Msg("Event broadcast queue full, dropping message")
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Int("total_clients", count).Msg("UI client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WSConnections.Dec()
	}
	count := len(h.clients)
	h.mu.Unlock()

	logging.Info().Int("total_clients", count).Msg("UI client disconnected")
}

// broadcastToClients delivers a message to every client in ID order.
// Clients whose queues are full are disconnected rather than blocking
// the loop.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
		logging.Warn().Uint64("client", client.id).Msg("Dropping slow UI client")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "events-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("Events hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
