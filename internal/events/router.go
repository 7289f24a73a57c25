// Package events routes inbound kafka messages to the referral and
// commission services.
package events

import (
	"context"
	"log/slog"

	"upline/internal/platform/kafka/consumer"
	"upline/internal/platform/metrics"
)

// Router dispatches messages to per-topic handlers. Messages for
// unregistered topics are dropped after a warning so a misconfigured
// subscription cannot wedge the group.
type Router struct {
	handlers map[string]consumer.Handler
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

func NewRouter(logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		handlers: make(map[string]consumer.Handler),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Register(topic string, handler consumer.Handler) {
	r.handlers[topic] = handler
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, dropping message", "topic", msg.Topic)
		r.observe(msg.Topic, "dropped")
		return nil
	}
	if err := handler.Handle(ctx, msg); err != nil {
		r.observe(msg.Topic, "failed")
		return err
	}
	r.observe(msg.Topic, "handled")
	return nil
}

func (r *Router) observe(topic, outcome string) {
	if r.metrics != nil {
		r.metrics.EventsConsumed.WithLabelValues(topic, outcome).Inc()
	}
}
