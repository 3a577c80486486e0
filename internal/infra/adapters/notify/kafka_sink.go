package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/infra/metrics"
)

var _ adapter.NotificationSink = (*KafkaSink)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every event as JSON on one topic, keyed by event name.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka topic empty")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

type envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func (s *KafkaSink) Notify(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(envelope{Event: event, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(event),
		Value: body,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		metrics.IncNotification("kafka", "failed")
		return err
	}
	metrics.IncNotification("kafka", "sent")
	return nil
}

func (s *KafkaSink) Close() error { return s.writer.Close() }
