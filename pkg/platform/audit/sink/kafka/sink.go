// Package kafka mirrors stored audit events onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "kycflow/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink publishes each event as a JSON record. Records are keyed by
// application id, falling back to user id, so one application's trail stays
// ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
}

// New builds a sink. An empty topic uses the client's default produce topic.
func New(producer Producer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   partitionKey(event),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
		Timestamp: event.Timestamp,
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event %s: %w", event.ID, err)
	}
	return nil
}

func partitionKey(event audit.Event) []byte {
	switch {
	case !event.ApplicationID.IsNil():
		return []byte(event.ApplicationID.String())
	case !event.UserID.IsNil():
		return []byte(event.UserID.String())
	default:
		return []byte(event.ID)
	}
}
