package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"stream-pipeline/internal/logging"
)

// Producer is the publishing half of the broker client. The pipeline
// components depend on this interface; tests substitute a fake.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// Client owns the shared Kafka producer and admin access.
type Client struct {
	brokers  string
	clientID string
	producer *kafka.Producer
}

// NewClient connects a producer to the given brokers.
func NewClient(brokers, clientID string) (*Client, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	logging.Info("Kafka producer connected to %s", brokers)
	return &Client{brokers: brokers, clientID: clientID, producer: p}, nil
}

// Produce publishes one message and waits for the delivery report, so
// a returned nil means the broker accepted the write.
func (c *Client) Produce(ctx context.Context, topic, key string, value []byte) error {
	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}
	if err := c.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("produce to %s: unexpected event %T", topic, ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("produce to %s: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureTopic creates the topic with the given partition count if it
// does not already exist. Replication factor 1 suits the single-broker
// deployments this pipeline targets.
func (c *Client) EnsureTopic(ctx context.Context, topic string, partitions int) error {
	admin, err := kafka.NewAdminClientFromProducer(c.producer)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			logging.Info("Created topic %s with %d partitions", res.Topic, partitions)
		case kafka.ErrTopicAlreadyExists:
			logging.Debug("Topic already exists: %s", res.Topic)
		default:
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Error)
		}
	}
	return nil
}

// Close flushes pending deliveries and releases the producer.
func (c *Client) Close() {
	remaining := c.producer.Flush(int(10 * time.Second / time.Millisecond))
	if remaining > 0 {
		logging.Warn("Producer closed with %d undelivered messages", remaining)
	}
	c.producer.Close()
}
