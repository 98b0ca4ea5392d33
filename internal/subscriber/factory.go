package subscriber

import (
	"fmt"
	"strings"

	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
)

// New creates a Subscriber for the configured queue type. The memory type
// consumes the in-process queue behind shared, which must then be the
// *queue.MemoryQueue the publisher writes to.
func New(cfg config.QueueConfig, subCfg Config, shared queue.Publisher, logger *logging.Logger) (Subscriber, error) {
	if subCfg.ConsumerGroup == "" {
		subCfg.ConsumerGroup = cfg.ConsumerGroup
	}

	switch strings.ToLower(cfg.Type) {
	case queue.TypeMemory:
		q, ok := shared.(*queue.MemoryQueue)
		if !ok {
			return nil, fmt.Errorf("memory subscriber needs the in-process memory queue")
		}
		return NewMemorySubscriber(q, logger), nil

	case queue.TypeNATS:
		s, err := NewNATSSubscriber(queue.NATSOptions{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
		}, subCfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case queue.TypeRedis:
		s, err := NewRedisSubscriber(queue.RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		}, subCfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case queue.TypeKafka:
		s, err := NewKafkaSubscriber(cfg.KafkaBrokers, subCfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case "", queue.TypeNone:
		return nil, fmt.Errorf("queue type none has nothing to subscribe to")

	default:
		return nil, fmt.Errorf("unsupported queue type: %s", cfg.Type)
	}
}
