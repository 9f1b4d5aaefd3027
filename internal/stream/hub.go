// Package stream provides fan-out distribution of engine events to
// subscribers via channels.
package stream

import (
	"sync"
	"time"
)

// EventType classifies an engine event.
type EventType string

const (
	EventOrderFilled    EventType = "order_filled"
	EventOrderCancelled EventType = "order_cancelled"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventStopUpdated    EventType = "stop_updated"
)

// Event is a single engine event broadcast to subscribers.
type Event struct {
	Type       EventType
	Symbol     string
	OrderID    string
	PositionID string
	Price      float64
	Quantity   float64
	Reason     string
	Timestamp  time.Time
}

// HubConfig holds configuration for the event hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{SubscriberBufferSize: 100}
}

// Hub distributes engine events to multiple subscribers. Publishing never
// blocks: events to a full subscriber buffer are dropped and counted.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	eventsPublished uint64
	eventsDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new event hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new event hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber and returns its event channel.
func (h *Hub) Subscribe(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.subscribers[id]; ok {
		return existing.Channel
	}

	sub := &Subscriber{
		ID:        id,
		Channel:   make(chan Event, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}
	h.subscribers[id] = sub
	return sub.Channel
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Publish broadcasts an event to all subscribers without blocking.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.eventsPublished++
	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- event:
		default:
			sub.DroppedCount++
			h.eventsDropped++
		}
	}
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Metrics returns published and dropped event counts.
func (h *Hub) Metrics() (published, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.eventsPublished, h.eventsDropped
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
