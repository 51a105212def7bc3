package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
)

// SampleEvent is the wire form of an acquired rate.
type SampleEvent struct {
	Pair       string    `json:"pair"`
	Rate       float64   `json:"rate"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

func NewSampleEvent(sample model.RateSample) SampleEvent {
	return SampleEvent{
		Pair:       model.TrackedPair.String(),
		Rate:       sample.Rate,
		ObservedAt: sample.ObservedAt.UTC(),
		Source:     string(sample.Source),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

var _ ports.SamplePublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			Async:                  true,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, sample model.RateSample) error {
	event := NewSampleEvent(sample)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode sample event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Pair),
		Value: value,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish sample event: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
