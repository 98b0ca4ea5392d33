package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// MemoryCache is a size-bounded in-process cache. Entries are only evicted
// when the capacity is reached.
type MemoryCache struct {
	mu    sync.Mutex
	cache *lru.Cache[ledger.DataSource, *Entry]
	now   func() time.Time
}

// NewMemoryCache creates a cache holding at most size sources
func NewMemoryCache(size int) (*MemoryCache, error) {
	c, err := lru.New[ledger.DataSource, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryCache{cache: c, now: time.Now}, nil
}

// Get implements HistoricalDataCache
func (m *MemoryCache) Get(_ context.Context, source ledger.DataSource, r analytics.DateRange, p analytics.Periodicity) ([]analytics.TimeSeriesPoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Get(source)
	if !ok || !entry.Serves(r, p) {
		return nil, false, nil
	}
	return entry.Slice(r), true, nil
}

// Put implements HistoricalDataCache
func (m *MemoryCache) Put(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, _ := m.cache.Peek(entry.Source)
	stamp(&entry, previous, m.now())
	entry.Points = analytics.TimeSeriesData(entry.Points).Clone()
	m.cache.Add(entry.Source, &entry)
	return nil
}

// Invalidate implements HistoricalDataCache
func (m *MemoryCache) Invalidate(_ context.Context, source ledger.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(source)
	return nil
}

// InvalidateAll implements HistoricalDataCache
func (m *MemoryCache) InvalidateAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	return nil
}

// Entries implements HistoricalDataCache
func (m *MemoryCache) Entries(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, m.cache.Len())
	for _, source := range m.cache.Keys() {
		if e, ok := m.cache.Peek(source); ok {
			cp := *e
			cp.Points = analytics.TimeSeriesData(e.Points).Clone()
			entries = append(entries, cp)
		}
	}
	sortEntries(entries)
	return entries, nil
}

// Len returns the number of cached sources
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// Close implements HistoricalDataCache
func (m *MemoryCache) Close() error {
	return m.InvalidateAll(context.Background())
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Source < entries[j].Source
	})
}
