// Package events carries the process-wide event bus: device hotplug and
// stream lifecycle notifications fan out to any number of subscribers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(DeviceAddedEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case DeviceAddedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceRemovedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStartedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStoppedEvent:
		event.Publish(b.dispatcher, e)
	case StreamErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e DeviceAddedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceAddedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
