// Package publisher emits archive events onto NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chatvault/chatvault/internal/models"
)

// SubjectMessageNew is the subject for freshly archived live messages.
const SubjectMessageNew = "messages.new"

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// MessageNewEvent is the payload published for each live message the watch
// command persists.
type MessageNewEvent struct {
	ChatID     int64              `json:"chat_id"`
	MessageID  int64              `json:"message_id"`
	Type       models.MessageType `json:"type"`
	Content    string             `json:"content,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ArchivedAt time.Time          `json:"archived_at"`
}

// NATSPublisher publishes archive events.
type NATSPublisher struct {
	nc NATSClient
}

// NewNATSPublisher creates a new publisher.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: conn}
}

// PublishMessageNew publishes a new-message event.
func (p *NATSPublisher) PublishMessageNew(ctx context.Context, event MessageNewEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.nc.Publish(SubjectMessageNew, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}
