// Package kafka publishes account events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"account-identity-core/internal/events"
)

// Producer implements events.Emitter using segmentio/kafka-go.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns a producer for topic, or nil when brokers or topic are empty.
// Call Close when shutting down.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// Emit writes e as JSON keyed by account id, so one account's events stay ordered within a partition.
func (p *Producer) Emit(ctx context.Context, e *events.Event) error {
	if p == nil || p.writer == nil || e == nil {
		return nil
	}
	msg, err := Message(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}

// Close closes the writer. Safe on a nil producer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Message encodes e for the topic.
func Message(e *events.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.AccountID),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}
