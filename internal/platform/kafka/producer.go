// Package kafka publishes respondent events to the event stream.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"pollster/internal/events/models"
)

// Producer publishes outbox records to a single topic, keyed by respondent so
// one respondent's events stay ordered within a partition.
type Producer struct {
	client *kgo.Client
	topic  string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka producer requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka producer requires a topic")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// Publish implements outbox.Publisher.
func (p *Producer) Publish(ctx context.Context, rec models.OutboxRecord) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(rec.EventType)},
			{Key: HeaderCategory, Value: []byte(rec.EventType.Category())},
			{Key: HeaderOutboxID, Value: []byte(rec.OutboxID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", rec.EventType, err)
	}
	return nil
}

func (p *Producer) Close() {
	p.client.Close()
}

// Header names attached to every produced record.
const (
	HeaderEventType = "event_type"
	HeaderCategory  = "event_category"
	HeaderOutboxID  = "outbox_id"
)

// EnsureTopic creates topic when it does not exist yet.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int32, replicationFactor int16) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create kafka admin client: %w", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	existing, err := admin.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if d, ok := existing[topic]; ok && d.Err == nil {
		return nil
	}
	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
