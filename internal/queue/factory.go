package queue

import (
	"fmt"
	"strings"

	"github.com/soltixdb/ledgercast/internal/config"
)

// Supported queue types
const (
	TypeNone   = "none"
	TypeMemory = "memory"
	TypeNATS   = "nats"
	TypeRedis  = "redis"
	TypeKafka  = "kafka"
)

// NewPublisher creates a Publisher from configuration. An empty or "none"
// type yields a publisher that drops every message.
func NewPublisher(cfg config.QueueConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeNone:
		return nopPublisher{}, nil

	case TypeMemory:
		return NewMemoryQueue(), nil

	case TypeNATS:
		q, err := NewNATSQueue(NATSOptions{URL: cfg.URL, Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, err
		}
		return q, nil

	case TypeRedis:
		p, err := NewRedisPublisher(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case TypeKafka:
		p, err := NewKafkaPublisher(KafkaConfig{Brokers: cfg.KafkaBrokers})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: none, memory, nats, redis, kafka)", cfg.Type)
	}
}
