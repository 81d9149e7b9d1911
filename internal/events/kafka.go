package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ksred/exchange-api/internal/config"
)

// Producer is a thin wrapper around a kafka writer for the order-events
// topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer that requires acks from all replicas.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send publishes one keyed message. Messages with the same key land on
// the same partition, preserving per-user ordering.
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NewReader creates a consumer-group reader for the order-events topic.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
}
