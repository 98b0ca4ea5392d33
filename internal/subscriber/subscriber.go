// Package subscriber consumes ledgercast events from the configured broker.
package subscriber

import (
	"context"
)

// MessageHandler processes one delivered message. A returned error leaves
// the message unacknowledged so the broker can redeliver it.
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// Subscriber defines the consumer side of the event queue
type Subscriber interface {
	// Subscribe starts consuming subject in the background
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error

	// Unsubscribe stops consuming subject
	Unsubscribe(subject string) error

	// Close stops every subscription and releases the connection
	Close() error
}

// Config holds consumer identity settings
type Config struct {
	// ConsumerGroup names the durable consumer or group shared by instances
	ConsumerGroup string

	// ConsumerID identifies this instance inside the group
	ConsumerID string

	// StartFromOldest replays retained messages on a new consumer instead of
	// starting at the tail
	StartFromOldest bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		ConsumerGroup: "ledgercast",
		ConsumerID:    "forecaster",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = d.ConsumerGroup
	}
	if c.ConsumerID == "" {
		c.ConsumerID = d.ConsumerID
	}
	return c
}
