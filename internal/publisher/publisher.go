// Package publisher forwards persisted records to a message topic.
package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// Publisher sends one payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordNotification is the message body published for every record.
type RecordNotification struct {
	SessionID string              `json:"session_id"`
	StartID   string              `json:"start_id"`
	Record    crawler.VideoRecord `json:"record"`
}

// Notifier implements crawler.RecordSink on top of a Publisher.
type Notifier struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

var _ crawler.RecordSink = (*Notifier)(nil)

// NewNotifier wraps pub. topic is passed through to the publisher.
func NewNotifier(pub Publisher, topic string, logger *zap.Logger) (*Notifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, topic: topic, logger: logger}, nil
}

// Consume publishes a RecordNotification for record.
func (n *Notifier) Consume(ctx context.Context, session crawler.SessionRef, record crawler.VideoRecord) error {
	msg := RecordNotification{
		SessionID: uuid.UUID(session.ID).String(),
		StartID:   session.StartID,
		Record:    record,
	}
	id, err := n.pub.Publish(ctx, n.topic, msg)
	if err != nil {
		return fmt.Errorf("publish record %d: %w", record.Order, err)
	}
	n.logger.Debug("record published", zap.String("message_id", id), zap.Int("order", record.Order))
	return nil
}
