package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"pgsentry/internal/config"
	"pgsentry/internal/queue"
)

// Consumer implements queue.Consumer using a Kafka consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a consumer for the configured topic and group.
func NewConsumer(cfg *config.KafkaConfig, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
	return &Consumer{reader: reader, logger: logger}
}

// Start fetches messages and commits each one after the handler succeeds.
// Failed messages are logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context, handler queue.MessageHandler) error {
	c.logger.Info("starting kafka consumer",
		"topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID,
	)

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}

		msg := fromKafka(km)
		if err := handler(ctx, msg); err != nil {
			c.logger.Error("failed to process message",
				"message_id", msg.Headers[queue.HeaderMessageID],
				"partition", km.Partition,
				"offset", km.Offset,
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
