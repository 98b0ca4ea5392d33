package subscriber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
)

// NATSSubscriber consumes the JetStream event stream with one durable
// consumer per subject
type NATSSubscriber struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	config        Config
	logger        *logging.Logger
	subscriptions map[string]*nats.Subscription
	mu            sync.RWMutex
}

// NewNATSSubscriber connects to NATS and makes sure the event stream exists
func NewNATSSubscriber(opts queue.NATSOptions, cfg Config, logger *logging.Logger) (*NATSSubscriber, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg = cfg.withDefaults()
	log := logger.Component("subscriber.nats")

	natsOpts := []nats.Option{
		nats.Name(fmt.Sprintf("ledgercast-%s", cfg.ConsumerID)),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if err := queue.EnsureEventStream(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSSubscriber{
		conn:          conn,
		js:            js,
		config:        cfg,
		logger:        log,
		subscriptions: make(map[string]*nats.Subscription),
	}, nil
}

// durableName is stable per group and subject so a restarted consumer
// resumes after its last acknowledged message
func (s *NATSSubscriber) durableName(subject string) string {
	return queue.SanitizeConsumerName(fmt.Sprintf("%s-%s", s.config.ConsumerGroup, subject))
}

// Subscribe attaches a durable push consumer to subject
func (s *NATSSubscriber) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	deliver := nats.DeliverNew()
	if s.config.StartFromOldest {
		deliver = nats.DeliverAll()
	}

	durable := s.durableName(subject)
	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, msg.Subject, msg.Data); err != nil {
			s.logger.Error("Failed to handle message",
				"subject", msg.Subject,
				"error", err,
				"data_preview", string(msg.Data[:min(100, len(msg.Data))]))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxAckPending(100),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		deliver,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	s.subscriptions[subject] = sub
	s.logger.Info("Subscribed to subject", "subject", subject, "durable", durable)
	return nil
}

// Unsubscribe stops the consumer of subject
func (s *NATSSubscriber) Unsubscribe(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}

	delete(s.subscriptions, subject)
	s.logger.Info("Unsubscribed from subject", "subject", subject)
	return nil
}

// Close drops every subscription and closes the connection
func (s *NATSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subject, sub := range s.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", "subject", subject, "error", err)
		}
	}
	s.subscriptions = make(map[string]*nats.Subscription)

	s.conn.Close()
	s.logger.Info("NATS subscriber closed")
	return nil
}
