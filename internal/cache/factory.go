package cache

import (
	"context"
	"fmt"

	"github.com/soltixdb/ledgercast/internal/config"
)

// New creates the cache backend selected by cfg.Backend
func New(ctx context.Context, cfg config.CacheConfig, redisCfg config.RedisConfig) (HistoricalDataCache, error) {
	switch cfg.Backend {
	case "memory", "":
		c, err := NewMemoryCache(cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		client, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		return NewRedisCache(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
