package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/storefront-orders/api/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotificationPublisher writes notifications to a Kafka topic keyed by source id, so
// events for one order land on one partition in order.
type KafkaNotificationPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaNotificationPublisher constructs a synchronous Kafka publisher.
func NewKafkaNotificationPublisher(brokers []string, topic string) (*KafkaNotificationPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notification publisher: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka notification publisher: topic is required")
	}
	return &KafkaNotificationPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
		now: time.Now,
	}, nil
}

// Name identifies the publisher in logs and metrics.
func (p *KafkaNotificationPublisher) Name() string { return "kafka" }

// Publish writes the notification and returns its id as the delivery reference.
func (p *KafkaNotificationPublisher) Publish(ctx context.Context, notification domain.Notification) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka notification publisher: not initialised")
	}
	value, err := json.Marshal(newNotificationMessage(notification))
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	key := notification.SourceID
	if key == "" {
		key = notification.ID
	}
	attrs := notificationAttributes(notification)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, name := range []string{"notificationId", "type", "audience", "sourceId"} {
		if v, ok := attrs[name]; ok {
			headers = append(headers, kafka.Header{Key: name, Value: []byte(v)})
		}
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    p.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return notification.ID, nil
}

// Close flushes and releases the underlying writer.
func (p *KafkaNotificationPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
