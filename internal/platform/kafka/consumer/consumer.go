// Package consumer wraps franz-go group consumption behind a small
// Handler interface so event routing stays testable without brokers.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-agnostic view handlers receive.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message. Returning an error leaves the message
// uncommitted for redelivery.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer drives a kafka consumer group and hands records to a Handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// New connects a group consumer for the given topics.
func New(brokers []string, group string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled. Failed messages are logged
// and left uncommitted; the group will redeliver them.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.logger.ErrorContext(ctx, "kafka fetch error",
					"topic", fe.Topic,
					"error", fe.Err,
				)
			}
		}

		var handled []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := &Message{
				Topic:     rec.Topic,
				Key:       rec.Key,
				Value:     rec.Value,
				Timestamp: rec.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "event handler failed, leaving uncommitted",
					"topic", rec.Topic,
					"key", string(rec.Key),
					"error", err,
				)
				return
			}
			handled = append(handled, rec)
		})

		if len(handled) > 0 {
			if err := c.client.CommitRecords(ctx, handled...); err != nil {
				c.logger.ErrorContext(ctx, "kafka commit failed", "error", err)
			}
		}
	}
}

// Close leaves the group cleanly.
func (c *Consumer) Close() {
	c.client.Close()
}
