package eventbus

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes MessageCreated events to a Kafka topic keyed by conversation
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish keys by conversation so one conversation stays on one partition
func (p *KafkaPublisher) Publish(ctx context.Context, evt MessageCreated) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Conversation),
		Value: value,
		Time:  evt.CreatedAt,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
