package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func monthlyPoints(from time.Time, values ...float64) []analytics.TimeSeriesPoint {
	out := make([]analytics.TimeSeriesPoint, len(values))
	for i, v := range values {
		out[i] = analytics.TimeSeriesPoint{
			Time:     from.AddDate(0, i, 0),
			Value:    v,
			Metadata: map[string]interface{}{"period": from.AddDate(0, i, 0).Format("2006-01")},
		}
	}
	return out
}

var year2024 = analytics.NewDateRange(month(2024, 1), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))

func revenueEntry() Entry {
	return Entry{
		Source:      ledger.Revenue,
		Periodicity: analytics.Monthly,
		Range:       year2024,
		Points:      monthlyPoints(month(2024, 1), 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120),
	}
}

type backend struct {
	name string
	new  func(t *testing.T) HistoricalDataCache
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) HistoricalDataCache {
			c, err := NewMemoryCache(8)
			require.NoError(t, err)
			return c
		}},
		{"redis", func(t *testing.T) HistoricalDataCache {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisCache(client, "test:history")
		}},
	}
}

func TestCache_HitAndMiss(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := b.new(t)
			defer c.Close()

			_, ok, err := c.Get(ctx, ledger.Revenue, year2024, analytics.Monthly)
			require.NoError(t, err)
			assert.False(t, ok, "empty cache must miss")

			require.NoError(t, c.Put(ctx, revenueEntry()))

			q2 := analytics.NewDateRange(month(2024, 4), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
			points, ok, err := c.Get(ctx, ledger.Revenue, q2, analytics.Monthly)
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, points, 3)
			assert.Equal(t, 40.0, points[0].Value)
			assert.Equal(t, 60.0, points[2].Value)

			_, ok, _ = c.Get(ctx, ledger.Revenue, year2024, analytics.Quarterly)
			assert.False(t, ok, "other periodicity must miss")

			wider := analytics.NewDateRange(month(2023, 6), year2024.To)
			_, ok, _ = c.Get(ctx, ledger.Revenue, wider, analytics.Monthly)
			assert.False(t, ok, "uncovered range must miss")

			_, ok, _ = c.Get(ctx, ledger.Expenses, year2024, analytics.Monthly)
			assert.False(t, ok, "other source must miss")
		})
	}
}

func TestCache_PutReplacesAndKeepsCreatedAt(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := b.new(t)
			defer c.Close()

			require.NoError(t, c.Put(ctx, revenueEntry()))
			first, err := c.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, first, 1)
			assert.False(t, first[0].CreatedAt.IsZero())

			smaller := Entry{
				Source:      ledger.Revenue,
				Periodicity: analytics.Monthly,
				Range:       analytics.NewDateRange(month(2024, 11), year2024.To),
				Points:      monthlyPoints(month(2024, 11), 1, 2),
			}
			require.NoError(t, c.Put(ctx, smaller))

			entries, err := c.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Len(t, entries[0].Points, 2, "put must replace, not merge")
			assert.True(t, entries[0].CreatedAt.Equal(first[0].CreatedAt))
			assert.False(t, entries[0].UpdatedAt.Before(first[0].UpdatedAt))

			_, ok, _ := c.Get(ctx, ledger.Revenue, year2024, analytics.Monthly)
			assert.False(t, ok, "old window is gone after replace")
		})
	}
}

func TestCache_Invalidate(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := b.new(t)
			defer c.Close()

			expenses := revenueEntry()
			expenses.Source = ledger.Expenses
			require.NoError(t, c.Put(ctx, revenueEntry()))
			require.NoError(t, c.Put(ctx, expenses))

			require.NoError(t, c.Invalidate(ctx, ledger.Revenue))
			entries, err := c.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, ledger.Expenses, entries[0].Source)

			require.NoError(t, c.InvalidateAll(ctx))
			entries, err = c.Entries(ctx)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := b.new(t)
			defer c.Close()

			entry := revenueEntry()
			require.NoError(t, c.Put(ctx, entry))
			entry.Points[0].Metadata["period"] = "mutated"

			points, ok, err := c.Get(ctx, ledger.Revenue, year2024, analytics.Monthly)
			require.NoError(t, err)
			require.True(t, ok)
			points[0].Metadata["period"] = "mutated again"

			again, _, _ := c.Get(ctx, ledger.Revenue, year2024, analytics.Monthly)
			assert.Equal(t, "2024-01", again[0].Metadata["period"])
		})
	}
}

func TestMemoryCache_EvictsOnCapacity(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(2)
	require.NoError(t, err)

	for _, source := range []ledger.DataSource{ledger.Revenue, ledger.Expenses, ledger.CashFlow} {
		e := revenueEntry()
		e.Source = source
		require.NoError(t, c.Put(ctx, e))
	}

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, ledger.Revenue, year2024, analytics.Monthly)
	assert.False(t, ok, "least recently used source is evicted")
}

func TestNewMemoryCache_InvalidSize(t *testing.T) {
	_, err := NewMemoryCache(0)
	assert.Error(t, err)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, "test:history")
	defer c.Close()

	require.NoError(t, mr.Set("test:history:revenue", "\x00{not json"))

	_, _, err := c.Get(context.Background(), ledger.Revenue, year2024, analytics.Monthly)
	assert.Error(t, err)

	// a corrupt entry is overwritten by the next put
	require.NoError(t, c.Put(context.Background(), revenueEntry()))
	_, ok, err := c.Get(context.Background(), ledger.Revenue, year2024, analytics.Monthly)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_Backends(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	mem, err := New(ctx, config.CacheConfig{Backend: "memory", MaxEntries: 4}, config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, mem)

	rc, err := New(ctx, config.CacheConfig{Backend: "redis", KeyPrefix: "x"}, config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, rc)
	require.NoError(t, rc.Close())

	_, err = New(ctx, config.CacheConfig{Backend: "memcached"}, config.RedisConfig{})
	assert.Error(t, err)
}
