// Package memory provides an in-process queue for single-node deployments
// and tests.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pgsentry/internal/metrics"
	"pgsentry/internal/queue"
)

// Queue is a buffered channel implementing both queue.Producer and
// queue.Consumer. It is safe for concurrent use.
type Queue struct {
	messages chan *queue.Message
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewQueue creates a queue holding up to bufferSize messages. Publish blocks
// while the buffer is full.
func NewQueue(bufferSize int, logger *slog.Logger) *Queue {
	return &Queue{
		messages: make(chan *queue.Message, bufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Publish enqueues a message. It fails with ErrQueueClosed after Close and
// with the context error when the context ends first.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	start := time.Now()
	select {
	case q.messages <- msg:
		metrics.QueuePublishLatency.Observe(time.Since(start).Seconds())
		metrics.QueueDepth.Set(float64(len(q.messages)))
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start consumes messages until the context is canceled or the queue is
// closed. Handler errors are logged and the message is dropped.
func (q *Queue) Start(ctx context.Context, handler queue.MessageHandler) error {
	q.wg.Add(1)
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case msg := <-q.messages:
			metrics.QueueDepth.Set(float64(len(q.messages)))
			if err := handler(ctx, msg); err != nil {
				q.logger.Error("failed to process message",
					"key", string(msg.Key),
					"message_id", msg.Headers[queue.HeaderMessageID],
					"error", err,
				)
			}
		}
	}
}

// Close stops all consumers and rejects further publishes. Messages still
// buffered are discarded.
func (q *Queue) Close() error {
	q.once.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
	return nil
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.messages)
}
