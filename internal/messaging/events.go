package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
)

// EventPublisher is a lifecycle sink that publishes every pairing event as
// JSON on pairing.events.<kind>.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher on client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EventSubject returns the subject events of kind are published on.
func EventSubject(kind pairing.EventKind) string {
	return SubjectEvents + "." + string(kind)
}

// Name identifies the publisher in lifecycle logs.
func (p *EventPublisher) Name() string { return "nats-events" }

// Handle publishes ev.
func (p *EventPublisher) Handle(_ context.Context, ev pairing.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("messaging: marshal %s event: %w", ev.Kind, err)
	}
	return p.client.Publish(EventSubject(ev.Kind), data)
}
