package kafka

import (
	"context"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	defaultGroupID = "cgw-delivery"
	defaultTopic   = "webhooks.pending"
)

// Consumer wraps a kafka-go group Reader on the outbox topic.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(c config.KafkaConfig) *Consumer {
	min := c.MinBytes
	if min <= 0 {
		min = 1 << 10 // 1KB
	}
	max := c.MaxBytes
	if max <= 0 {
		max = 10 << 20 // 10MB
	}
	ci := time.Duration(c.CommitInterval) * time.Millisecond
	if ci <= 0 {
		ci = time.Second
	}
	group := c.GroupID
	if group == "" {
		group = defaultGroupID
	}
	topic := c.Topic
	if topic == "" {
		topic = defaultTopic
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       min,
		MaxBytes:       max,
		CommitInterval: ci,
		MaxWait:        250 * time.Millisecond,
	})

	return &Consumer{r: r}
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Topic() string { return c.r.Config().Topic }

func (c *Consumer) Close() error { return c.r.Close() }
