// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package relay

import (
	"errors"
	"fmt"
	"sync"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// FrameWriter delivers one binary frame to a destination. The websocket
// handler adapts a connection to this; tests substitute their own.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// Listener is one fan-out destination on a stream. Frames are queued in a
// bounded channel by Broadcast and drained by Pump; consecutive write
// failures open the listener's circuit breaker, which disconnects it.
type Listener struct {
	id     uint64
	stream *Stream
	frames chan []byte

	breaker *gobreaker.CircuitBreaker[struct{}]

	// closeMu orders offers against closeFrames: once closed is set no
	// goroutine can be inside the channel send, so the close is safe.
	closeMu sync.RWMutex
	closed  bool
}

func newListener(id uint64, stream *Stream, cfg config.RelayConfig) *Listener {
	name := fmt.Sprintf("relay-%s-listener-%d", stream.name, id)
	failures := uint32(cfg.BreakerFailures)

	l := &Listener{
		id:     id,
		stream: stream,
		frames: make(chan []byte, cfg.SendBuffer),
	}
	l.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Relay listener breaker state transition")
		},
	})
	return l
}

// ID returns the listener's stream-local identifier.
func (l *Listener) ID() uint64 { return l.id }

// offer queues a frame without blocking. False means the buffer was full
// or the listener already detached.
func (l *Listener) offer(frame []byte) bool {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()

	if l.closed {
		return false
	}
	select {
	case l.frames <- frame:
		return true
	default:
		return false
	}
}

// Pump drains queued frames into the writer until the stream closes the
// listener, the breaker opens, or the writer fails terminally. Individual
// write failures drop the frame and count against the breaker; the listener
// survives until the breaker trips.
func (l *Listener) Pump(w FrameWriter) {
	for frame := range l.frames {
		_, err := l.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, w.WriteFrame(frame)
		})
		switch {
		case err == nil:
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			l.stream.removeListener(l.id, disconnectBreaker)
			return
		default:
			metrics.RelayFramesDropped.WithLabelValues(l.stream.name, disconnectWriteError).Inc()
			logging.Debug().
				Str("stream", l.stream.name).
				Uint64("listener", l.id).
				Err(err).
				Msg("Relay frame write failed")
		}
	}
}

// Close detaches the listener from its stream. Safe to call more than once
// and concurrently with Pump.
func (l *Listener) Close() {
	l.stream.removeListener(l.id, disconnectClient)
}

// closeFrames terminates Pump. The write lock waits out any in-flight
// offer, so a detach can never race a send into the channel close.
func (l *Listener) closeFrames() {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.frames)
}
