package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wakewise/notification-engine/internal/scheduler"
)

// Producer publishes notification lifecycle events to Kafka. The analytics
// pipeline consumes the stream outside this repo.
type Producer struct {
	writer *kafka.Writer
}

// ProducerConfig holds the Kafka connection settings
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        true, // Lifecycle events must never block the scheduler
	}

	return &Producer{writer: writer}
}

// PublishEvent publishes one lifecycle event, keyed by notification id so
// per-notification ordering is preserved
func (p *Producer) PublishEvent(ctx context.Context, ev scheduler.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.NotificationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Kind)},
			{Key: "type", Value: []byte(ev.Type)},
		},
		Time: ev.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write lifecycle event: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
