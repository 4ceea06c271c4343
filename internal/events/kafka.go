package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Well-known topic names.
const (
	TopicRoute    = "delivery.route"
	TopicStatus   = "delivery.status"
	TopicLocation = "driver.location"
)

// TopicFor returns the Kafka topic an event type is published to
func TopicFor(t Type) string {
	switch t {
	case RouteOptimized, RouteRefreshed:
		return TopicRoute
	case StatusChanged:
		return TopicStatus
	default:
		return TopicLocation
	}
}

// KafkaPublisher publishes events to Kafka so downstream consumers (analytics, email) can react
type KafkaPublisher struct {
	brokers []string
	writer  *kafkago.Writer
}

// NewKafkaPublisher returns a publisher for the given brokers. Writes are batched in the
// background; Close flushes what is still buffered.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.LeastBytes{},
			Async:        true,
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			Completion:   logPublishFailures,
		},
	}
}

// logPublishFailures reports async batches the writer gave up on
func logPublishFailures(messages []kafkago.Message, err error) {
	if err != nil {
		log.Printf("❌ [kafka] publish of %d messages failed: %v", len(messages), err)
	}
}

// EnsureTopics creates topics if they don't already exist (with retry).
func (p *KafkaPublisher) EnsureTopics(ctx context.Context) error {
	topics := []string{TopicRoute, TopicStatus, TopicLocation}
	for attempt := 1; attempt <= 10; attempt++ {
		conn, err := kafkago.DialContext(ctx, "tcp", p.brokers[0])
		if err != nil {
			log.Printf("⚠️  Kafka not ready, retrying in 3s... (%d/10)", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		configs := make([]kafkago.TopicConfig, len(topics))
		for i, t := range topics {
			configs[i] = kafkago.TopicConfig{
				Topic:             t,
				NumPartitions:     3,
				ReplicationFactor: 1,
			}
		}

		err = conn.CreateTopics(configs...)
		conn.Close()
		if err != nil {
			log.Printf("Topic creation returned (may already exist): %v", err)
		}
		log.Println("✅ Kafka topics ensured")
		return nil
	}
	return fmt.Errorf("kafka: could not connect after 10 attempts")
}

// Notify publishes asynchronously; failures are logged and dropped
func (p *KafkaPublisher) Notify(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("❌ [kafka] Failed to marshal %s event: %v", ev.Type, err)
		return
	}

	key := ev.DeliveryID
	if key == "" {
		key = ev.DriverID
	}

	// Async writer: WriteMessages only enqueues, failures reach logPublishFailures
	if err := p.writer.WriteMessages(context.Background(), kafkago.Message{
		Topic: TopicFor(ev.Type),
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		log.Printf("❌ [kafka] publish %s failed: %v", ev.Type, err)
	}
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
