// SPDX-License-Identifier: MIT
// Package events carries stream lifecycle and server diagnostic events to
// interested subscribers (the CLI, the TUI, tests). Delivery is asynchronous;
// publishers never block on subscribers.
package events

import (
	"github.com/kelindar/event"
)

// Event type identifiers for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeServerNotification
	TypeStreamFatal
)

// Event is the interface kelindar/event dispatches on.
type Event interface {
	Type() uint32
}

// StreamStarted is published once a stream is active and connected.
type StreamStarted struct {
	Client     string
	SampleRate uint32
	BufferSize uint32
}

func (StreamStarted) Type() uint32 { return TypeStreamStarted }

// StreamStopped is published after a stream handle is released.
type StreamStopped struct {
	Client string
}

func (StreamStopped) Type() uint32 { return TypeStreamStopped }

// ServerNotification is a non-fatal notification from the server.
type ServerNotification struct {
	Client string
	Kind   string
	Detail string
}

func (ServerNotification) Type() uint32 { return TypeServerNotification }

// StreamFatal is published when the server disconnects the stream.
type StreamFatal struct {
	Client      string
	Description string
}

func (StreamFatal) Type() uint32 { return TypeStreamFatal }

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish sends ev to every subscriber of its type. A nil Bus drops it.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StreamStarted:
		event.Publish(b.dispatcher, e)
	case StreamStopped:
		event.Publish(b.dispatcher, e)
	case ServerNotification:
		event.Publish(b.dispatcher, e)
	case StreamFatal:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function. Unknown handler types are ignored.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamStarted):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStopped):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerNotification):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamFatal):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
