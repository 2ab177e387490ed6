package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/retailops/api/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes lifecycle events to a Kafka topic keyed by entity ID, so
// events for one entity land on one partition.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaWriter builds a writer for the brokers and topic.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notifier: at least one broker is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}, nil
}

// NewKafkaNotifier wraps a writer.
func NewKafkaNotifier(writer messageWriter) (*KafkaNotifier, error) {
	if writer == nil {
		return nil, errors.New("kafka notifier: writer is required")
	}
	return &KafkaNotifier{writer: writer}, nil
}

// Notify writes one message per event. The active trace context travels in
// the message headers.
func (k *KafkaNotifier) Notify(ctx context.Context, event domain.LifecycleEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	headers := []kafka.Header{{Key: "eventType", Value: []byte(event.Kind)}}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, key := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(carrier.Get(key))})
	}
	msg := kafka.Message{
		Key:     []byte(event.EntityID),
		Value:   value,
		Headers: headers,
		Time:    event.Timestamp,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write lifecycle event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
