package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes persisted records as JSON, keyed by entity and entity id
// so records about the same entity land on one partition.
type KafkaSink struct {
	w       MessageWriter
	timeout time.Duration
}

// NewKafkaSink returns nil when brokers or topic are empty; a nil sink is a no-op.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{w: w, timeout: 5 * time.Second}
}

func (s *KafkaSink) Publish(ctx context.Context, r Record) error {
	if s == nil || s.w == nil {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.Entity + ":" + strconv.FormatInt(r.EntityID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(r.Action)},
		},
	})
}

// Close is safe on a nil sink.
func (s *KafkaSink) Close() error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Close()
}
