package subscriber

import (
	"context"
	"fmt"
	"sync"

	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
)

// MemorySubscriber consumes subjects of an in-process MemoryQueue. The queue
// is shared with the publisher and is not closed by the subscriber.
type MemorySubscriber struct {
	queue   *queue.MemoryQueue
	logger  *logging.Logger
	cancels map[string]context.CancelFunc
	mu      sync.Mutex
}

// NewMemorySubscriber creates a subscriber on q
func NewMemorySubscriber(q *queue.MemoryQueue, logger *logging.Logger) *MemorySubscriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MemorySubscriber{
		queue:   q,
		logger:  logger.Component("subscriber.memory"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Subscribe hands every message of subject to handler until ctx is done
// or the subject is unsubscribed
func (s *MemorySubscriber) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cancels[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	subCtx, cancel := context.WithCancel(ctx)
	err := s.queue.Subscribe(subject, func(data []byte) error {
		if subCtx.Err() != nil {
			return subCtx.Err()
		}
		if err := handler(subCtx, subject, data); err != nil {
			s.logger.Error("Failed to handle message", "subject", subject, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		cancel()
		return err
	}

	s.cancels[subject] = cancel
	s.logger.Info("Subscribed to in-memory subject", "subject", subject)
	return nil
}

// Unsubscribe stops consuming subject
func (s *MemorySubscriber) Unsubscribe(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, exists := s.cancels[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(s.cancels, subject)
	return s.queue.Unsubscribe(subject)
}

// Close stops every subscription
func (s *MemorySubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subject, cancel := range s.cancels {
		cancel()
		_ = s.queue.Unsubscribe(subject)
	}
	s.cancels = make(map[string]context.CancelFunc)
	return nil
}
