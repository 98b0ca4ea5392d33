package session

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

var (
	etcdOnce      sync.Once
	etcdEndpoints []string
	etcdErr       error
)

// sharedEtcd starts one embedded etcd per test binary; each test uses its own prefix
func sharedEtcd(t *testing.T) []string {
	t.Helper()
	etcdOnce.Do(func() {
		dir, err := os.MkdirTemp("", "ledgercast-etcd-*")
		if err != nil {
			etcdErr = err
			return
		}
		cfg := embed.NewConfig()
		cfg.Dir = dir

		clientURL, _ := url.Parse("http://127.0.0.1:0")
		peerURL, _ := url.Parse("http://127.0.0.1:0")
		cfg.ListenClientUrls = []url.URL{*clientURL}
		cfg.ListenPeerUrls = []url.URL{*peerURL}
		cfg.LogLevel = "error"
		cfg.Logger = "zap"

		e, err := embed.StartEtcd(cfg)
		if err != nil {
			etcdErr = err
			return
		}
		select {
		case <-e.Server.ReadyNotify():
		case <-time.After(10 * time.Second):
			e.Close()
			etcdErr = context.DeadlineExceeded
			return
		}
		etcdEndpoints = []string{e.Clients[0].Addr().String()}
	})
	if etcdErr != nil {
		t.Skipf("embedded etcd unavailable: %v", etcdErr)
	}
	return etcdEndpoints
}

func newEtcdStore(t *testing.T, maxTxnOps int) *EtcdStore {
	client, err := clientv3.New(clientv3.Config{Endpoints: sharedEtcd(t), DialTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewEtcdStore(client, "/test/"+t.Name(), maxTxnOps)
}

type backend struct {
	name string
	new  func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"etcd", func(t *testing.T) Store { return newEtcdStore(t, 128) }},
	}
}

var created = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func TestStore_SaveAndGet(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			in := sampleSession("s1", ledger.Revenue, created)
			require.NoError(t, store.Save(ctx, in))

			out, err := store.GetByID(ctx, "s1")
			require.NoError(t, err)

			assert.Equal(t, in.Name, out.Name)
			assert.Equal(t, in.DataSource, out.DataSource)
			assert.Equal(t, in.Periodicity, out.Periodicity)
			assert.True(t, in.DateRange.From.Equal(out.DateRange.From))
			assert.True(t, in.DateRange.To.Equal(out.DateRange.To))
			assert.True(t, in.CreatedAt.Equal(out.CreatedAt))

			require.Len(t, out.Scenarios, 3)
			assert.Equal(t, []string{"linear", "ma", "seasonal"},
				[]string{out.Scenarios[0].ID, out.Scenarios[1].ID, out.Scenarios[2].ID})
			assert.Equal(t, forecast.MovingAverageParams{Weights: []float64{1, 2, 3}}, out.Scenarios[1].Parameters)
			assert.Nil(t, out.Scenarios[0].Parameters)

			require.Len(t, out.Results["linear"], 3)
			assert.Equal(t, 1350.0, out.Results["linear"][1].PredictedValue)
			assert.True(t, out.Results["linear"][1].Date.Equal(month(2024, 8)))
			assert.Equal(t, 2.0, out.Results["linear"][1].Metrics["step"])
			assert.Len(t, out.Results["ma"], 2)

			failed, ok := out.Results["seasonal"]
			assert.True(t, ok, "failed scenario keeps an empty result entry")
			assert.Empty(t, failed)
			_, hasAcc := out.Accuracy["seasonal"]
			assert.False(t, hasAcc)
			assert.Equal(t, 0.99, out.Accuracy["linear"].R2)
			assert.Equal(t, 1, out.Accuracy["linear"].TestSize)
			assert.True(t, out.Accuracy["linear"].HasMAPE())
			assert.False(t, out.Accuracy["ma"].HasMAPE())

			require.Len(t, out.HistoricalData, 6)
			assert.Equal(t, 1250.0, out.HistoricalData[5].Value)
			assert.Equal(t, "2024-06", out.HistoricalData[5].Metadata["period"])
		})
	}
}

func TestStore_ReturnedSessionsAreIsolated(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			in := sampleSession("s1", ledger.Revenue, created)
			require.NoError(t, store.Save(ctx, in))
			in.Results["linear"][0].PredictedValue = -1

			out, err := store.GetByID(ctx, "s1")
			require.NoError(t, err)
			out.Results["linear"][0].PredictedValue = -2

			again, err := store.GetByID(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1300.0, again.Results["linear"][0].PredictedValue)
		})
	}
}

func TestStore_ResaveReplacesResults(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			s := sampleSession("s1", ledger.Revenue, created)
			require.NoError(t, store.Save(ctx, s))

			s.Results["linear"] = results(forecast.MethodLinearRegression, month(2024, 7), 1, 2)
			s.Results["ma"] = []forecast.Result{}
			delete(s.Accuracy, "ma")
			s.LastModified = created.Add(time.Hour)
			require.NoError(t, store.Save(ctx, s))

			out, err := store.GetByID(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, out.Results["linear"], 2)
			assert.Empty(t, out.Results["ma"])
			_, hasAcc := out.Accuracy["ma"]
			assert.False(t, hasAcc)
			assert.True(t, out.LastModified.Equal(created.Add(time.Hour)))

			rows, err := store.QueryResults(ctx, "s1", "", analytics.NewDateRange(month(2024, 1), month(2025, 1)))
			require.NoError(t, err)
			assert.Len(t, rows, 2, "stale rows are removed on re-save")
		})
	}
}

func TestStore_ListOrdering(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			require.NoError(t, store.Save(ctx, sampleSession("old", ledger.Revenue, created)))
			require.NoError(t, store.Save(ctx, sampleSession("new", ledger.Revenue, created.Add(48*time.Hour))))
			require.NoError(t, store.Save(ctx, sampleSession("cash", ledger.CashFlow, created.Add(24*time.Hour))))

			all, err := store.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"new", "cash", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})
			assert.Len(t, all[0].Results["linear"], 3, "listed sessions carry their results")

			revenue, err := store.ListByDataSource(ctx, ledger.Revenue)
			require.NoError(t, err)
			require.Len(t, revenue, 2)
			assert.Equal(t, "new", revenue[0].ID)

			none, err := store.ListByDataSource(ctx, ledger.Inventory)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			require.NoError(t, store.Save(ctx, sampleSession("s1", ledger.Revenue, created)))
			require.NoError(t, store.Save(ctx, sampleSession("s2", ledger.Revenue, created)))

			require.NoError(t, store.Delete(ctx, "s1"))

			_, err := store.GetByID(ctx, "s1")
			assert.ErrorIs(t, err, ErrSessionNotFound)
			_, err = store.QueryResults(ctx, "s1", "linear", analytics.NewDateRange(month(2024, 1), month(2025, 1)))
			assert.ErrorIs(t, err, ErrSessionNotFound)

			assert.ErrorIs(t, store.Delete(ctx, "s1"), ErrSessionNotFound)

			remaining, err := store.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, remaining, 1)
			assert.Equal(t, "s2", remaining[0].ID)
		})
	}
}

func TestStore_QueryResults(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)
			require.NoError(t, store.Save(ctx, sampleSession("s1", ledger.Revenue, created)))

			augToSep := analytics.NewDateRange(month(2024, 8), month(2024, 9))
			rows, err := store.QueryResults(ctx, "s1", "linear", augToSep)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, 1350.0, rows[0].PredictedValue)
			assert.Equal(t, 1400.0, rows[1].PredictedValue)
			assert.Equal(t, "s1", rows[0].SessionID)
			assert.Equal(t, "linear", rows[0].ScenarioID)

			all, err := store.QueryResults(ctx, "s1", "", augToSep)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"linear", "linear", "ma"}, []string{all[0].ScenarioID, all[1].ScenarioID, all[2].ScenarioID})

			none, err := store.QueryResults(ctx, "s1", "unknown", augToSep)
			require.NoError(t, err)
			assert.Empty(t, none)

			_, err = store.QueryResults(ctx, "missing", "", augToSep)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStore_RejectsInvalidSession(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := sampleSession("", ledger.Revenue, created)
			assert.Error(t, b.new(t).Save(context.Background(), s))
		})
	}
}

func TestEtcdStore_TransactionLimit(t *testing.T) {
	store := newEtcdStore(t, 4)
	err := store.Save(context.Background(), sampleSession("big", ledger.Revenue, created))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above the limit")

	_, err = store.GetByID(context.Background(), "big")
	assert.ErrorIs(t, err, ErrSessionNotFound, "nothing is written when the save is refused")
}

func TestNew_Backends(t *testing.T) {
	store, err := New(config.SessionsConfig{Backend: "memory"}, config.EtcdConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(config.SessionsConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "s.db")}, config.EtcdConfig{})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = New(config.SessionsConfig{Backend: "mongo"}, config.EtcdConfig{})
	assert.Error(t, err)
}
