// Package notify publishes user-facing notification events. Delivery is
// fail-open: a broker outage must never fail a registration, a
// calculation or a payout.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"upline/internal/platform/kafka/producer"
	id "upline/pkg/domain"
)

// Notifier is what the domain services accept; Kafka and Noop both
// satisfy it.
type Notifier interface {
	Notify(ctx context.Context, user id.UserID, eventType string)
}

// Event is the envelope published on the notify topic.
type Event struct {
	UserID string    `json:"userId"`
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
}

// Kafka publishes notification events through franz-go.
type Kafka struct {
	producer *producer.Producer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

func NewKafka(p *producer.Producer, topic string, logger *slog.Logger) *Kafka {
	return &Kafka{
		producer: p,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

func (k *Kafka) Notify(ctx context.Context, user id.UserID, eventType string) {
	payload, err := json.Marshal(Event{
		UserID: user.String(),
		Type:   eventType,
		At:     k.now().UTC(),
	})
	if err != nil {
		k.logger.WarnContext(ctx, "encode notification", "type", eventType, "error", err)
		return
	}
	if err := k.producer.Produce(ctx, k.topic, []byte(user.String()), payload); err != nil {
		k.logger.WarnContext(ctx, "publish notification",
			"type", eventType,
			"user", user.String(),
			"error", err,
		)
	}
}

// Noop discards notifications; used when no broker is configured.
type Noop struct{}

func (Noop) Notify(context.Context, id.UserID, string) {}
