// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for OrangeAvatar
const (
	// Playback events
	EventTypeTickFired     EventType = "playback.tick"
	EventTypeCycleComplete EventType = "playback.cycle_complete"
	EventTypeFrameSkipped  EventType = "playback.frame_skipped"

	// Audio cue events
	EventTypeCueStarted EventType = "cue.started"
	EventTypeCueEnded   EventType = "cue.ended"
	EventTypeCueErrored EventType = "cue.errored"

	// Asset events
	EventTypeProbeResolved  EventType = "assets.probe_resolved"
	EventTypePreloadStarted EventType = "assets.preload_started"
	EventTypePreloadWarm    EventType = "assets.preload_warm"

	// Avatar events
	EventTypeBehaviorStarted EventType = "avatar.behavior_started"
	EventTypeBehaviorStopped EventType = "avatar.behavior_stopped"

	// Speech events
	EventTypeSpeechDispatched EventType = "speech.dispatched"
	EventTypeSpeechReply      EventType = "speech.reply"
	EventTypeSpeechFailed     EventType = "speech.failed"

	// Render events
	EventTypeRenderConnected    EventType = "render.connected"
	EventTypeRenderDisconnected EventType = "render.disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Call handlers in goroutines to avoid blocking timer callbacks
		go handler(event)
	}
}
