package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"pollster/internal/events/models"
)

// EventHandler consumes decoded events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *models.Event) error
}

// DirectPublisher hands outbox records straight to an in-process handler.
// It stands in for the stream when no brokers are configured.
type DirectPublisher struct {
	handler EventHandler
}

func NewDirectPublisher(handler EventHandler) *DirectPublisher {
	return &DirectPublisher{handler: handler}
}

func (p *DirectPublisher) Publish(ctx context.Context, rec models.OutboxRecord) error {
	event, err := Decode(rec.Payload)
	if err != nil {
		return err
	}
	return p.handler.HandleEvent(ctx, event)
}

// Decode parses an outbox payload back into an event.
func Decode(payload []byte) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &event, nil
}
