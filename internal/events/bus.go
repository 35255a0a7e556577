// Package events provides the in-process pub/sub bus that connects score
// writes, batch runs, alerts, and macro ingestion to the live event stream.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a category of event on the bus.
type EventType string

const (
	ScoreUpdated     EventType = "score.updated"
	ScoringCompleted EventType = "scoring.completed"
	AlertTriggered   EventType = "alert.triggered"
	MacroUpdated     EventType = "macro.updated"
	MarketUpdated    EventType = "market.updated"
	JobCompleted     EventType = "job.completed"
)

// AllTypes lists every event type the stream endpoint may subscribe to.
var AllTypes = []EventType{
	ScoreUpdated,
	ScoringCompleted,
	AlertTriggered,
	MacroUpdated,
	MarketUpdated,
	JobCompleted,
}

// Event is a single bus message.
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers must not block; slow consumers
// should buffer and drop on their side.
type Handler func(*Event)

// Bus is a minimal in-process pub/sub dispatcher. Subscription is
// per-event-type; publishing fans out asynchronously so publishers never
// wait on consumers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish delivers an event to all subscribers of its type.
// Delivery happens on a separate goroutine; a panicking handler is logged
// and does not affect the others.
func (b *Bus) Publish(t EventType, module string, data interface{}) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[t]))
	copy(hs, b.handlers[t])
	b.mu.RUnlock()

	if len(hs) == 0 {
		return
	}

	ev := &Event{
		Type:      t,
		Module:    module,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	go func() {
		for _, h := range hs {
			b.dispatch(h, ev)
		}
	}()
}

func (b *Bus) dispatch(h Handler, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(ev.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	h(ev)
}
