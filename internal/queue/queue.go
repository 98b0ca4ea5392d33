// Package queue publishes ledgercast domain events to a message broker.
package queue

import "context"

// Publisher publishes messages to a queue
type Publisher interface {
	// Publish publishes a message to a subject/topic
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishBatch publishes multiple messages and waits for all to complete.
	// Returns the number of successfully published messages.
	PublishBatch(ctx context.Context, messages []BatchMessage) (int, error)

	// Close closes the connection
	Close() error
}

// BatchMessage represents a message for batch publishing
type BatchMessage struct {
	Subject string
	Data    []byte
}

// Subscriber subscribes to messages from a queue
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) error
	Unsubscribe(subject string) error
	Close() error
}

// MessageHandler handles incoming messages
type MessageHandler func(data []byte) error

var (
	_ Subscriber = (*MemoryQueue)(nil)
	_ Subscriber = (*NATSQueue)(nil)
)

// nopPublisher drops every message. Used when events are disabled.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }

func (nopPublisher) PublishBatch(_ context.Context, messages []BatchMessage) (int, error) {
	return len(messages), nil
}

func (nopPublisher) Close() error { return nil }
