// Package producer wraps franz-go record production for outbound
// notification events.
package producer

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records to kafka.
type Producer struct {
	client *kgo.Client
}

// New connects a producer to the given brokers.
func New(brokers []string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client}, nil
}

// Produce sends one record synchronously.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	return p.client.ProduceSync(ctx, rec).FirstErr()
}

// Close flushes and closes the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}
