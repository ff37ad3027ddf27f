package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quotestream/pkg/models"
)

// Sink mirrors generated quotes outside the process. Mirrors are best-effort
// and never gate delivery to sessions.
type Sink interface {
	Publish(ctx context.Context, q models.Quote) error
	Close() error
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time check to ensure both mirrors implement Sink
var (
	_ Sink = (*KafkaSink)(nil)
	_ Sink = (*RedisSink)(nil)
)

// KafkaSink writes each quote keyed by ticker so a ticker stays on one partition.
type KafkaSink struct {
	writer KafkaWriter
}

func NewKafkaSink(writer KafkaWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter is the production writer tuned like a tick producer: small
// batches, short linger, async.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

func (k *KafkaSink) Publish(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(q.Ticker),
		Value: payload,
	})
}

// Close flushes buffered messages.
func (k *KafkaSink) Close() error { return k.writer.Close() }

type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes on <prefix><TICKER>. Pub/sub only: nothing is stored.
type RedisSink struct {
	client RedisPublisher
	prefix string
}

func NewRedisSink(client RedisPublisher, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (r *RedisSink) Publish(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	return r.client.Publish(ctx, r.prefix+q.Ticker, payload).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }
