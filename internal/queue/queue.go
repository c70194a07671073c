// Package queue defines the message queue used to hand notification jobs
// from the request path to the background sender.
package queue

import (
	"context"
)

// Well-known message headers.
const (
	HeaderMessageID   = "message_id"
	HeaderContentType = "content_type"
)

// Message is a single queued job.
type Message struct {
	// Key is the partition key. Messages with the same key are delivered in order.
	Key []byte

	// Value is the encoded payload.
	Value []byte

	// Headers carries optional metadata.
	Headers map[string]string
}

// Producer publishes messages. Implementations must be safe for concurrent use.
type Producer interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// MessageHandler processes one consumed message. A returned error leaves the
// message unacknowledged where the implementation supports it.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer delivers messages to a handler.
type Consumer interface {
	// Start blocks until the context is canceled, the consumer is closed or
	// an unrecoverable error occurs.
	Start(ctx context.Context, handler MessageHandler) error

	Close() error
}
