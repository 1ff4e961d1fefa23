package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"aide/internal/config"
)

// Client bundles a writer and a reader for the ingestion topic.
type Client struct {
	Writer *kafka.Writer
	Reader *kafka.Reader
	cfg    *config.KafkaConfig
}

// Open connects to the first broker, creates the ingestion topic if it
// does not exist, and builds the writer and the consumer-group reader.
func Open(cfg *config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("no Kafka topic configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("dial Kafka broker %s: %w", cfg.Brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("read Kafka partitions: %w", err)
	}
	exists := false
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			exists = true
			break
		}
	}
	if !exists {
		err = conn.CreateTopics(kafka.TopicConfig{
			Topic:             cfg.Topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("create Kafka topic %q: %w", cfg.Topic, err)
		}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxAttempts: 10,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second},
	})

	return &Client{Writer: writer, Reader: reader, cfg: cfg}, nil
}

// Publish writes one message to the ingestion topic.
func (c *Client) Publish(ctx context.Context, key, value []byte) error {
	return c.Writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Fetch blocks until the next message is available or the context ends.
// The caller must Commit the message after processing it.
func (c *Client) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.Reader.FetchMessage(ctx)
}

// Commit acknowledges a fetched message.
func (c *Client) Commit(ctx context.Context, msg kafka.Message) error {
	return c.Reader.CommitMessages(ctx, msg)
}

// Close shuts down the writer and the reader.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var firstErr error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			firstErr = fmt.Errorf("close Kafka writer: %w", err)
		}
	}
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close Kafka reader: %w", err)
		}
	}
	return firstErr
}
