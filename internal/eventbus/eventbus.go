// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package eventbus provides the in-process event bus connecting ushadow's
// subsystems. The registry, share service, u-node manager, and settings
// manager publish domain events; the WebSocket hub and audit logger
// subscribe. Watermill's gochannel Pub/Sub carries the messages, so a
// future multi-node deployment can swap the transport without touching
// publishers or subscribers.
package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/metrics"
)

// Topics carried on the bus.
const (
	TopicServiceRegistered   = "service.registered"
	TopicServiceDeregistered = "service.deregistered"
	TopicServiceHealth       = "service.health"

	TopicProviderChanged = "provider.changed"

	TopicShareCreated  = "share.created"
	TopicShareRedeemed = "share.redeemed"
	TopicShareRevoked  = "share.revoked"

	TopicNodeOnline  = "node.online"
	TopicNodeOffline = "node.offline"

	TopicInstanceDeployed = "instance.deployed"
	TopicInstanceStopped  = "instance.stopped"

	TopicSettingsChanged = "settings.changed"

	TopicRelayStreamOpened = "relay.stream.opened"
	TopicRelayStreamClosed = "relay.stream.closed"
)

// Event is the envelope carried in every bus message payload.
type Event struct {
	ID    string          `json:"id"`
	Topic string          `json:"topic"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

// Bus is the in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates a bus. Subscribers receive only events published after
// they subscribe.
func New() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: false,
		},
		NewWatermillLogger(),
	)
	return &Bus{pubsub: pubsub}
}

// Publish marshals data into an Event envelope and publishes it on topic.
func (b *Bus) Publish(topic string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data for %s: %w", topic, err)
	}

	evt := Event{
		ID:    uuid.New().String(),
		Topic: topic,
		Time:  time.Now().UTC(),
		Data:  raw,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event envelope for %s: %w", topic, err)
	}

	msg := message.NewMessage(evt.ID, payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	metrics.BusEventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns a channel of messages for topic. The channel closes
// when ctx is canceled or the bus shuts down. Callers must Ack or Nack
// every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Decode unwraps the Event envelope from a bus message.
func Decode(msg *message.Message) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &evt, nil
}

// DecodeData unwraps the envelope and unmarshals its Data into out.
func DecodeData(msg *message.Message, out interface{}) (*Event, error) {
	evt, err := Decode(msg)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evt.Data, out); err != nil {
		return nil, fmt.Errorf("decode event data for %s: %w", evt.Topic, err)
	}
	return evt, nil
}
