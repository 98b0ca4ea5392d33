package subscriber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/soltixdb/ledgercast/internal/logging"
)

// KafkaSubscriber reads one topic per subject through a consumer group
type KafkaSubscriber struct {
	brokers []string
	config  Config
	logger  *logging.Logger
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewKafkaSubscriber creates a subscriber. Readers connect lazily on Subscribe.
func NewKafkaSubscriber(brokers []string, cfg Config, logger *logging.Logger) (*KafkaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &KafkaSubscriber{
		brokers: brokers,
		config:  cfg.withDefaults(),
		logger:  logger.Component("subscriber.kafka"),
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

func (s *KafkaSubscriber) readerConfig(topic string) kafka.ReaderConfig {
	start := kafka.LastOffset
	if s.config.StartFromOldest {
		start = kafka.FirstOffset
	}
	log := s.logger
	return kafka.ReaderConfig{
		Brokers:               s.brokers,
		GroupID:               s.config.ConsumerGroup,
		Topic:                 topic,
		MinBytes:              1,
		MaxBytes:              1 << 20,
		MaxWait:               time.Second,
		CommitInterval:        time.Second,
		StartOffset:           start,
		HeartbeatInterval:     3 * time.Second,
		SessionTimeout:        30 * time.Second,
		RebalanceTimeout:      60 * time.Second,
		WatchPartitionChanges: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Debug(fmt.Sprintf(msg, args...))
		}),
	}
}

// Subscribe starts a group reader on the subject's topic
func (s *KafkaSubscriber) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.readers[subject]; exists {
		return fmt.Errorf("already subscribed to topic: %s", subject)
	}

	reader := kafka.NewReader(s.readerConfig(subject))
	subCtx, cancel := context.WithCancel(ctx)
	s.readers[subject] = reader
	s.cancels[subject] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(subCtx, reader, subject, handler)
	}()

	s.logger.Info("Subscribed to Kafka topic", "topic", subject, "group", s.config.ConsumerGroup)
	return nil
}

func (s *KafkaSubscriber) consume(ctx context.Context, reader *kafka.Reader, subject string, handler MessageHandler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to fetch message", "topic", subject, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, subject, msg.Value); err != nil {
			// uncommitted offsets are re-read after the next rebalance
			s.logger.Error("Failed to handle message", "topic", subject, "offset", msg.Offset, "error", err)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			s.logger.Error("Failed to commit message", "topic", subject, "offset", msg.Offset, "error", err)
		}
	}
}

// Unsubscribe stops the reader of subject
func (s *KafkaSubscriber) Unsubscribe(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, exists := s.cancels[subject]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}
	cancel()
	delete(s.cancels, subject)

	if reader, ok := s.readers[subject]; ok {
		if err := reader.Close(); err != nil {
			s.logger.Warn("Failed to close reader", "topic", subject, "error", err)
		}
		delete(s.readers, subject)
	}

	s.logger.Info("Unsubscribed from Kafka topic", "topic", subject)
	return nil
}

// Close stops every reader
func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = make(map[string]context.CancelFunc)

	var lastErr error
	for topic, reader := range s.readers {
		if err := reader.Close(); err != nil {
			s.logger.Warn("Failed to close reader", "topic", topic, "error", err)
			lastErr = err
		}
	}
	s.readers = make(map[string]*kafka.Reader)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Kafka subscriber closed")
	return lastErr
}
