package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

// KafkaPublisher writes monitor events to a topic keyed by event name
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, l *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		logger: l.With("broker", "kafka", "topic", topic),
	}
}

func (k *KafkaPublisher) Name() string { return "kafka" }

func (k *KafkaPublisher) Publish(ctx context.Context, ev models.Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		metrics.BrokerHealth.WithLabelValues(k.Name()).Set(0)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	metrics.BrokerHealth.WithLabelValues(k.Name()).Set(1)
	return nil
}

func kafkaMessage(ev models.Event) (kafka.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Name),
		Value: body,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// Close flushes pending writes
func (k *KafkaPublisher) Close() error {
	k.logger.Info("Closing Kafka writer")
	return k.writer.Close()
}
