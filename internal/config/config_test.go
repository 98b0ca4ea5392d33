package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default config should be valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: true,
		},
		{
			name:    "unknown ledger backend",
			mutate:  func(c *Config) { c.Ledger.Backend = "mysql" },
			wantErr: true,
		},
		{
			name:    "postgres ledger without dsn",
			mutate:  func(c *Config) { c.Ledger.Backend = "postgres" },
			wantErr: true,
		},
		{
			name:    "bad ledger timezone",
			mutate:  func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "offset ledger timezone",
			mutate:  func(c *Config) { c.Ledger.Timezone = "+09:00" },
			wantErr: false,
		},
		{
			name:    "zero cache capacity",
			mutate:  func(c *Config) { c.Cache.MaxEntries = 0 },
			wantErr: true,
		},
		{
			name:    "bad default periodicity",
			mutate:  func(c *Config) { c.Cache.DefaultPeriodicity = "hourly" },
			wantErr: true,
		},
		{
			name: "etcd sessions without endpoints",
			mutate: func(c *Config) {
				c.Sessions.Backend = "etcd"
				c.Etcd.Endpoints = nil
			},
			wantErr: true,
		},
		{
			name:    "etcd sessions with tiny txn budget",
			mutate:  func(c *Config) { c.Sessions.Backend = "etcd"; c.Sessions.MaxTxnOps = 2 },
			wantErr: true,
		},
		{
			name:    "nats queue without url",
			mutate:  func(c *Config) { c.Queue.Type = "nats" },
			wantErr: true,
		},
		{
			name:    "kafka queue with brokers",
			mutate:  func(c *Config) { c.Queue.Type = "kafka"; c.Queue.KafkaBrokers = []string{"localhost:9092"} },
			wantErr: false,
		},
		{
			name:    "ledger listener without queue",
			mutate:  func(c *Config) { c.Queue.ListenLedgerChanges = true },
			wantErr: true,
		},
		{
			name:    "ledger listener on memory queue",
			mutate:  func(c *Config) { c.Queue.Type = "memory"; c.Queue.ListenLedgerChanges = true },
			wantErr: false,
		},
		{
			name:    "train ratio above one",
			mutate:  func(c *Config) { c.Forecast.TrainRatio = 1.5 },
			wantErr: true,
		},
		{
			name:    "min history below three",
			mutate:  func(c *Config) { c.Forecast.MinHistory = 2 },
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Forecast.MaxConcurrency = 0 },
			wantErr: true,
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 5560 {
		t.Errorf("Expected HTTP port 5560, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Forecast.TrainRatio != 0.8 {
		t.Errorf("Expected train ratio 0.8, got %v", cfg.Forecast.TrainRatio)
	}
	if cfg.Forecast.MinHistory != 3 {
		t.Errorf("Expected min history 3, got %d", cfg.Forecast.MinHistory)
	}
	if cfg.Etcd.DialTimeout != 5*time.Second {
		t.Errorf("Expected etcd dial timeout 5s, got %v", cfg.Etcd.DialTimeout)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  http_port: 7000
ledger:
  backend: memory
cache:
  backend: memory
  max_entries: 8
forecast:
  max_concurrency: 2
logging:
  level: debug
  format: console
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LEDGERCAST_SESSIONS_BACKEND", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPPort != 7000 {
		t.Errorf("Expected HTTP port 7000, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Cache.MaxEntries != 8 {
		t.Errorf("Expected max_entries 8, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Sessions.Backend != "memory" {
		t.Errorf("Expected env override for sessions backend, got %q", cfg.Sessions.Backend)
	}
	if cfg.Forecast.TrainRatio != 0.8 {
		t.Errorf("Expected default train ratio, got %v", cfg.Forecast.TrainRatio)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode for debug/console logging")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("forecast:\n  train_ratio: 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected validation error")
	}
	if cfg := LoadOrDefault(path); cfg.Forecast.TrainRatio != 0.8 {
		t.Errorf("LoadOrDefault should fall back to defaults, got %v", cfg.Forecast.TrainRatio)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	if got := cfg.ServerAddress(); got != "127.0.0.1:5560" {
		t.Errorf("ServerAddress() = %q", got)
	}

	dir := t.TempDir()
	cfg.Ledger.SQLitePath = filepath.Join(dir, "a", "ledger.db")
	cfg.Sessions.SQLitePath = filepath.Join(dir, "b", "sessions.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, sub := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected directory %s: %v", sub, err)
		}
	}

	cfg.Ledger.Timezone = "-05:00"
	loc, err := cfg.Ledger.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if _, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone(); offset != -5*3600 {
		t.Errorf("Expected -5h offset, got %d", offset)
	}
}
