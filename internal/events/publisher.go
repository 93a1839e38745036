// Package events publishes device sync outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic is the topic sync outcomes are published to
const DefaultTopic = "device_sync_events"

// EventTypeSyncCompleted identifies a SyncCompleted payload
const EventTypeSyncCompleted = "device.sync.completed"

// SyncCompleted is emitted after a sync attempt reached a terminal status
type SyncCompleted struct {
	EventType    string     `json:"event_type"`
	DeviceID     string     `json:"device_id"`
	UserID       string     `json:"user_id"`
	DeviceType   string     `json:"device_type"`
	Status       string     `json:"status"`
	Success      bool       `json:"success"`
	MetricsCount int        `json:"metrics_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SyncedAt     time.Time  `json:"synced_at"`
	NextSyncAt   *time.Time `json:"next_sync_at,omitempty"`
}

// Publisher delivers sync events
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, event SyncCompleted) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic, keyed by device id
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// PublishSyncCompleted serializes the event and writes it synchronously
func (p *KafkaPublisher) PublishSyncCompleted(ctx context.Context, event SyncCompleted) error {
	if event.EventType == "" {
		event.EventType = EventTypeSyncCompleted
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.DeviceID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishSyncCompleted(context.Context, SyncCompleted) error { return nil }

func (NoopPublisher) Close() error { return nil }
