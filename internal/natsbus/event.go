package natsbus

import (
	"log/slog"
	"time"
)

// Event is the envelope published on every events.> topic and
// forwarded verbatim to websocket clients.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

func NewEvent(typ string, payload any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Publisher is the slice of Client the controllers depend on.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Emit publishes an event, logging instead of returning failures. A nil
// publisher is allowed and drops the event.
func Emit(p Publisher, topic, typ string, payload any) {
	if p == nil {
		return
	}
	if err := p.PublishJSON(topic, NewEvent(typ, payload)); err != nil {
		slog.Warn("publish event failed", "topic", topic, "error", err)
	}
}
