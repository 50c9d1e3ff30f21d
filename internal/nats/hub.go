package nats

import (
	"context"
	"encoding/json"
	"fmt"
)

// publisher is satisfied by *nats.Conn.
type publisher interface {
	Publish(subject string, data []byte) error
}

// HubPublisher sends real-time signals over core NATS. Nothing is persisted:
// subscribers that are not connected miss the signal.
type HubPublisher struct {
	conn publisher
}

// NewHubPublisher creates a hub publisher over conn.
func NewHubPublisher(conn publisher) *HubPublisher {
	return &HubPublisher{conn: conn}
}

// Publish encodes payload as JSON and publishes it on the topic's subject.
func (h *HubPublisher) Publish(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal hub payload: %w", err)
	}
	if err := h.conn.Publish(TopicSubject(topic), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}
