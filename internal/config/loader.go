package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// LEDGERCAST_CACHE_BACKEND=redis.
const EnvPrefix = "LEDGERCAST"

// Load loads configuration from file, environment and defaults. A .env file
// in the working directory is applied to the environment first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ledgercast")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("ledger.backend", d.Ledger.Backend)
	v.SetDefault("ledger.sqlite_path", d.Ledger.SQLitePath)
	v.SetDefault("ledger.timezone", d.Ledger.Timezone)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.default_lookback", d.Cache.DefaultLookback)
	v.SetDefault("cache.default_periodicity", d.Cache.DefaultPeriodicity)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("sessions.backend", d.Sessions.Backend)
	v.SetDefault("sessions.sqlite_path", d.Sessions.SQLitePath)
	v.SetDefault("sessions.etcd_prefix", d.Sessions.EtcdPrefix)
	v.SetDefault("sessions.max_txn_ops", d.Sessions.MaxTxnOps)

	v.SetDefault("etcd.endpoints", d.Etcd.Endpoints)
	v.SetDefault("etcd.dial_timeout", d.Etcd.DialTimeout)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.redis_stream", d.Queue.RedisStream)
	v.SetDefault("queue.consumer_group", d.Queue.ConsumerGroup)
	v.SetDefault("queue.listen_ledger_changes", d.Queue.ListenLedgerChanges)

	v.SetDefault("forecast.train_ratio", d.Forecast.TrainRatio)
	v.SetDefault("forecast.min_history", d.Forecast.MinHistory)
	v.SetDefault("forecast.confidence", d.Forecast.Confidence)
	v.SetDefault("forecast.confidence_decay", d.Forecast.ConfidenceDecay)
	v.SetDefault("forecast.max_concurrency", d.Forecast.MaxConcurrency)
	v.SetDefault("forecast.refit_on_full_history", d.Forecast.RefitOnFullHistory)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        5560,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend:    "sqlite",
			SQLitePath: "./data/ledger.db",
			Timezone:   "UTC",
		},
		Cache: CacheConfig{
			Backend:            "memory",
			MaxEntries:         64,
			KeyPrefix:          "ledgercast:history",
			DefaultLookback:    24,
			DefaultPeriodicity: "monthly",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sessions: SessionsConfig{
			Backend:    "sqlite",
			SQLitePath: "./data/sessions.db",
			EtcdPrefix: "/ledgercast/sessions",
			MaxTxnOps:  128,
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			Type:          "none",
			RedisStream:   "ledgercast",
			ConsumerGroup: "ledgercast",
		},
		Forecast: ForecastConfig{
			TrainRatio:      0.8,
			MinHistory:      3,
			Confidence:      0.95,
			ConfidenceDecay: 0.05,
			MaxConcurrency:  4,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "ledgercast",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
