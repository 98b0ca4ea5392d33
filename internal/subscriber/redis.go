package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
)

const defaultRedisBlock = time.Second

// RedisSubscriber reads Redis streams named <prefix>:<subject> through a
// consumer group
type RedisSubscriber struct {
	client        *redis.Client
	streamPrefix  string
	config        Config
	logger        *logging.Logger
	block         time.Duration
	subscriptions map[string]context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
}

// NewRedisSubscriber connects to redis and verifies the connection
func NewRedisSubscriber(rc queue.RedisConfig, cfg Config, logger *logging.Logger) (*RedisSubscriber, error) {
	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     rc.URL,
			Password: rc.Password,
			DB:       rc.DB,
		}
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSubscriberWithClient(client, rc.Stream, cfg, logger), nil
}

// NewRedisSubscriberWithClient wraps an existing client. The subscriber
// takes ownership and closes it on Close.
func NewRedisSubscriberWithClient(client *redis.Client, streamPrefix string, cfg Config, logger *logging.Logger) *RedisSubscriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	if streamPrefix == "" {
		streamPrefix = queue.SubjectPrefix
	}
	return &RedisSubscriber{
		client:        client,
		streamPrefix:  streamPrefix,
		config:        cfg.withDefaults(),
		logger:        logger.Component("subscriber.redis"),
		block:         defaultRedisBlock,
		subscriptions: make(map[string]context.CancelFunc),
	}
}

// StreamName maps a subject onto the stream the publisher appends to
func (s *RedisSubscriber) StreamName(subject string) string {
	return fmt.Sprintf("%s:%s", s.streamPrefix, subject)
}

// Subscribe creates the consumer group if needed and consumes the stream
// in the background
func (s *RedisSubscriber) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.StreamName(subject)
	if _, exists := s.subscriptions[stream]; exists {
		return fmt.Errorf("already subscribed to stream: %s", stream)
	}

	start := "$"
	if s.config.StartFromOldest {
		start = "0"
	}
	err := s.client.XGroupCreateMkStream(ctx, stream, s.config.ConsumerGroup, start).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.subscriptions[stream] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(subCtx, stream, subject, handler)
	}()

	s.logger.Info("Subscribed to Redis stream",
		"stream", stream,
		"group", s.config.ConsumerGroup,
		"consumer", s.config.ConsumerID)
	return nil
}

func (s *RedisSubscriber) consume(ctx context.Context, stream, subject string, handler MessageHandler) {
	for ctx.Err() == nil {
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.config.ConsumerGroup,
			Consumer: s.config.ConsumerID,
			Streams:  []string{stream, ">"},
			Count:    100,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.Error("Failed to read from stream", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, st := range streams {
			for _, message := range st.Messages {
				s.handle(ctx, stream, subject, message, handler)
			}
		}
	}
}

func (s *RedisSubscriber) handle(ctx context.Context, stream, subject string, message redis.XMessage, handler MessageHandler) {
	data, ok := message.Values["data"].(string)
	if !ok {
		s.logger.Warn("Invalid message format", "stream", stream, "id", message.ID)
		s.client.XAck(ctx, stream, s.config.ConsumerGroup, message.ID)
		return
	}

	if err := handler(ctx, subject, []byte(data)); err != nil {
		// left pending for redelivery through XCLAIM
		s.logger.Error("Failed to handle message", "stream", stream, "id", message.ID, "error", err)
		return
	}

	if err := s.client.XAck(ctx, stream, s.config.ConsumerGroup, message.ID).Err(); err != nil {
		s.logger.Error("Failed to ACK message", "stream", stream, "id", message.ID, "error", err)
	}
}

// Unsubscribe stops consuming subject
func (s *RedisSubscriber) Unsubscribe(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.StreamName(subject)
	cancel, exists := s.subscriptions[stream]
	if !exists {
		return fmt.Errorf("not subscribed to stream: %s", stream)
	}

	cancel()
	delete(s.subscriptions, stream)
	s.logger.Info("Unsubscribed from Redis stream", "stream", stream)
	return nil
}

// Close stops every consumer loop and closes the client
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()
	for stream, cancel := range s.subscriptions {
		cancel()
		s.logger.Debug("Cancelled subscription", "stream", stream)
	}
	s.subscriptions = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	s.logger.Info("Redis subscriber closed")
	return nil
}
