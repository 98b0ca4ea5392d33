// Package config loads and validates ledgercast configuration.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort        int           `mapstructure:"http_port"` // HTTP server port
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LedgerConfig selects where transactional history is read from
type LedgerConfig struct {
	Backend     string `mapstructure:"backend"`      // memory, sqlite, postgres
	SQLitePath  string `mapstructure:"sqlite_path"`  // Ledger database file for the sqlite backend
	PostgresDSN string `mapstructure:"postgres_dsn"` // Connection string for the postgres backend
	Timezone    string `mapstructure:"timezone"`     // Zone used to assign transactions to calendar days
}

// CacheConfig represents historical data cache configuration
type CacheConfig struct {
	Backend            string `mapstructure:"backend"`             // memory, redis
	MaxEntries         int    `mapstructure:"max_entries"`         // Capacity of the memory backend
	KeyPrefix          string `mapstructure:"key_prefix"`          // Redis key prefix
	DefaultLookback    int    `mapstructure:"default_lookback"`    // Periods regenerated on refresh for never-queried sources
	DefaultPeriodicity string `mapstructure:"default_periodicity"` // Periodicity used for that regeneration
}

// RedisConfig represents redis connection configuration
type RedisConfig struct {
	URL      string `mapstructure:"url"` // redis://host:port/db; takes precedence over Addr
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionsConfig selects the forecast session store
type SessionsConfig struct {
	Backend    string `mapstructure:"backend"`     // memory, sqlite, etcd
	SQLitePath string `mapstructure:"sqlite_path"` // Session database file for the sqlite backend
	EtcdPrefix string `mapstructure:"etcd_prefix"` // Key prefix for the etcd backend
	MaxTxnOps  int    `mapstructure:"max_txn_ops"` // Upper bound of operations in one etcd transaction
}

// EtcdConfig represents etcd configuration
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// QueueConfig represents event publishing configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // none, memory, nats, redis, kafka
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username string `mapstructure:"username"` // Optional broker credentials
	Password string `mapstructure:"password"` // Optional broker credentials

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`     // Redis database number (default: 0)
	RedisStream string `mapstructure:"redis_stream"` // Redis stream prefix (default: "ledgercast")

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"` // Kafka broker addresses

	// Consumer side
	ConsumerGroup       string `mapstructure:"consumer_group"`        // Durable consumer / group name (default: "ledgercast")
	ListenLedgerChanges bool   `mapstructure:"listen_ledger_changes"` // Invalidate cached history on ledger.changed events
}

// ForecastConfig represents scenario runner configuration
type ForecastConfig struct {
	TrainRatio         float64 `mapstructure:"train_ratio"`           // Share of history used for training
	MinHistory         int     `mapstructure:"min_history"`           // Minimum aggregated points for a run
	Confidence         float64 `mapstructure:"confidence"`            // Confidence level of prediction intervals
	ConfidenceDecay    float64 `mapstructure:"confidence_decay"`      // Confidence loss per forecast period
	MaxConcurrency     int     `mapstructure:"max_concurrency"`       // Scenarios trained in parallel
	RefitOnFullHistory bool    `mapstructure:"refit_on_full_history"` // Forecast from a model refit on all history
}

// MetricsConfig represents prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen, DateTime
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions config: %w", err)
	}

	if c.Sessions.Backend == "etcd" {
		if err := c.Etcd.Validate(); err != nil {
			return fmt.Errorf("etcd config: %w", err)
		}
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates ledger configuration
func (c *LedgerConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("ledger.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be one of: memory, sqlite, postgres")
	}
	if c.Timezone != "" {
		if _, err := c.Location(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "redis" {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis'")
	}
	if c.Backend == "memory" && c.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.DefaultLookback <= 0 {
		return fmt.Errorf("cache.default_lookback must be positive")
	}
	switch c.DefaultPeriodicity {
	case "daily", "weekly", "monthly", "quarterly", "yearly":
	default:
		return fmt.Errorf("cache.default_periodicity must be one of: daily, weekly, monthly, quarterly, yearly")
	}
	return nil
}

// Validate validates session store configuration
func (c *SessionsConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sessions.sqlite_path is required for the sqlite backend")
		}
	case "etcd":
		if c.EtcdPrefix == "" {
			return fmt.Errorf("sessions.etcd_prefix is required for the etcd backend")
		}
		if c.MaxTxnOps < 3 {
			return fmt.Errorf("sessions.max_txn_ops must be at least 3")
		}
	default:
		return fmt.Errorf("sessions.backend must be one of: memory, sqlite, etcd")
	}
	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch c.Type {
	case "", "none", "memory":
	case "nats", "redis":
		if c.URL == "" {
			return fmt.Errorf("queue.url is required for %s", c.Type)
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for kafka")
		}
	default:
		return fmt.Errorf("queue.type must be one of: none, memory, nats, redis, kafka")
	}
	if c.ListenLedgerChanges && (c.Type == "" || c.Type == "none") {
		return fmt.Errorf("queue.listen_ledger_changes requires a queue type other than none")
	}
	return nil
}

// Validate validates forecast configuration
func (c *ForecastConfig) Validate() error {
	if c.TrainRatio <= 0 || c.TrainRatio > 1 {
		return fmt.Errorf("forecast.train_ratio must be in (0, 1]")
	}
	if c.MinHistory < 3 {
		return fmt.Errorf("forecast.min_history must be at least 3")
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("forecast.confidence must be in (0, 1]")
	}
	if c.ConfidenceDecay <= 0 || c.ConfidenceDecay >= 1 {
		return fmt.Errorf("forecast.confidence_decay must be in (0, 1)")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("forecast.max_concurrency must be at least 1")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
		"pretty":  true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be one of: json, console, pretty")
	}

	return nil
}
