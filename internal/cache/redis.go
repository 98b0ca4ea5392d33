package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/compression"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// RedisCache stores one snappy-compressed JSON entry per source under
// <prefix>:<source>. Writes are plain SETs, so the last writer wins.
type RedisCache struct {
	client *redis.Client
	prefix string
	codec  *compression.Codec
	now    func() time.Time
}

// NewRedisClient connects to redis from URL (redis://...) or Addr
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a cache on top of an existing client
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "ledgercast:history"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		codec:  compression.SnappyCodec(),
		now:    time.Now,
	}
}

func (c *RedisCache) key(source ledger.DataSource) string {
	return fmt.Sprintf("%s:%s", c.prefix, source)
}

func (c *RedisCache) load(ctx context.Context, key string) (*Entry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := c.codec.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &entry, nil
}

// Get implements HistoricalDataCache
func (c *RedisCache) Get(ctx context.Context, source ledger.DataSource, r analytics.DateRange, p analytics.Periodicity) ([]analytics.TimeSeriesPoint, bool, error) {
	entry, err := c.load(ctx, c.key(source))
	if err != nil {
		return nil, false, err
	}
	if entry == nil || !entry.Serves(r, p) {
		return nil, false, nil
	}
	return entry.Slice(r), true, nil
}

// Put implements HistoricalDataCache
func (c *RedisCache) Put(ctx context.Context, entry Entry) error {
	key := c.key(entry.Source)

	previous, err := c.load(ctx, key)
	if err != nil {
		// an unreadable entry is overwritten
		previous = nil
	}
	stamp(&entry, previous, c.now())

	data, err := c.codec.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements HistoricalDataCache
func (c *RedisCache) Invalidate(ctx context.Context, source ledger.DataSource) error {
	if err := c.client.Del(ctx, c.key(source)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", source, err)
	}
	return nil
}

// InvalidateAll implements HistoricalDataCache
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Entries implements HistoricalDataCache
func (c *RedisCache) Entries(ctx context.Context) ([]Entry, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entry, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Close closes the redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
