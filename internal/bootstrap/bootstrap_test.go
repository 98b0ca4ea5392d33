package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/cache"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ledger.Backend = "memory"
	cfg.Sessions.Backend = "memory"
	cfg.Cache.Backend = "memory"
	cfg.Queue.Type = "memory"
	return cfg
}

func TestNew_Memory(t *testing.T) {
	app, err := New(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, app.Close()) }()

	assert.IsType(t, &ledger.MemoryLedger{}, app.Ledger)
	assert.IsType(t, &cache.MemoryCache{}, app.Cache)
	assert.IsType(t, &session.MemoryStore{}, app.Store)
	require.NotNil(t, app.Metrics)
	require.NotNil(t, app.Service)

	year, err := analytics.ParseDateRange("2024-01-01", "2024-12-31")
	require.NoError(t, err)

	// the memory ledger starts empty
	_, err = app.Service.CreateSession(context.Background(), services.CreateSessionRequest{
		Name:        "empty",
		DataSource:  ledger.Revenue,
		Periodicity: analytics.Monthly,
		DateRange:   year,
		Scenarios: []session.Scenario{
			{ID: "lr", Name: "trend", Method: forecast.MethodLinearRegression, ForecastHorizon: 1},
		},
	})
	var insufficient *services.InsufficientHistoryError
	assert.ErrorAs(t, err, &insufficient)
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Enabled = false

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Nil(t, app.Metrics)
}

func TestNew_SQLiteBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := memoryConfig()
	cfg.Ledger.Backend = "sqlite"
	cfg.Ledger.SQLitePath = filepath.Join(dir, "nested", "ledger.db")
	cfg.Sessions.Backend = "sqlite"
	cfg.Sessions.SQLitePath = filepath.Join(dir, "sessions.db")

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &ledger.SQLiteLedger{}, app.Ledger)
	assert.IsType(t, &session.SQLiteStore{}, app.Store)

	sessions, err := app.Service.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, app.Close())

	_, err = os.Stat(cfg.Ledger.SQLitePath)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.Sessions.SQLitePath)
	assert.NoError(t, err)
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.Cache.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.IsType(t, &cache.RedisCache{}, app.Cache)
}

func TestNew_FailureClosesOpenedComponents(t *testing.T) {
	cfg := memoryConfig()
	cfg.Sessions.Backend = "sqlite"
	cfg.Sessions.SQLitePath = filepath.Join(t.TempDir(), "sessions.db")
	cfg.Queue.Type = "carrier-pigeon"

	app, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "connect event queue")
}

func TestNew_UnknownBackends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"ledger", func(c *config.Config) { c.Ledger.Backend = "oracle" }, "open ledger"},
		{"cache", func(c *config.Config) { c.Cache.Backend = "memcached" }, "open historical cache"},
		{"sessions", func(c *config.Config) { c.Sessions.Backend = "mongo" }, "open session store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)

			_, err := New(context.Background(), cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_LedgerListener(t *testing.T) {
	cfg := memoryConfig()
	cfg.Queue.ListenLedgerChanges = true

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, app.Close()) }()
	require.NotNil(t, app.Listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))

	year, err := analytics.ParseDateRange("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	require.NoError(t, app.Cache.Put(ctx, cache.Entry{
		Source:      ledger.Expenses,
		Periodicity: analytics.Monthly,
		Range:       year,
		Points:      []analytics.TimeSeriesPoint{{Time: year.From, Value: 1}},
	}))
	_, hit, err := app.Cache.Get(ctx, ledger.Expenses, year, analytics.Monthly)
	require.NoError(t, err)
	require.True(t, hit)

	app.Events.Emit(ctx, queue.SubjectLedgerChanged, queue.LedgerChangedEvent{DataSources: []string{"expenses"}})

	assert.Eventually(t, func() bool {
		_, hit, err := app.Cache.Get(ctx, ledger.Expenses, year, analytics.Monthly)
		return err == nil && !hit
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNew_NoListenerByDefault(t *testing.T) {
	app, err := New(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Nil(t, app.Listener)
	assert.NoError(t, app.Start(context.Background()))
}
