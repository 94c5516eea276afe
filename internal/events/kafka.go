package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by run id, so that all events of one
// run land on the same partition in order.
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            5,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{w: w, topic: topic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(evt.RunID),
		Value: value,
		Time:  evt.TS,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "tenant-id", Value: []byte(evt.TenantID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event",
			zap.String("topic", p.topic),
			zap.String("event_type", evt.Type),
			zap.String("run_id", evt.RunID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
