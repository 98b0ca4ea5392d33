// Package cache memoizes aggregated historical series per data source.
//
// Each data source holds at most one entry. Writing an entry replaces the
// previous one entirely, and entries never expire on their own; they are
// dropped by Invalidate or InvalidateAll.
package cache

import (
	"context"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// Entry is the cached aggregate of one data source
type Entry struct {
	Source      ledger.DataSource           `json:"source"`
	Periodicity analytics.Periodicity       `json:"periodicity"`
	Range       analytics.DateRange         `json:"range"` // query window the points were built from
	Points      []analytics.TimeSeriesPoint `json:"points"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Serves reports whether the entry can answer a query for r at periodicity p
func (e *Entry) Serves(r analytics.DateRange, p analytics.Periodicity) bool {
	return e.Periodicity == p && e.Range.Covers(r)
}

// Slice returns a deep copy of the cached points inside r
func (e *Entry) Slice(r analytics.DateRange) []analytics.TimeSeriesPoint {
	return analytics.TimeSeriesData(e.Points).Within(r).Clone()
}

// HistoricalDataCache stores one aggregated series per data source
type HistoricalDataCache interface {
	// Get returns the cached points inside r. The second result is false
	// when the source has no entry, the entry uses another periodicity or
	// its window does not cover r.
	Get(ctx context.Context, source ledger.DataSource, r analytics.DateRange, p analytics.Periodicity) ([]analytics.TimeSeriesPoint, bool, error)

	// Put replaces everything cached for entry.Source. CreatedAt is kept
	// from the replaced entry when present.
	Put(ctx context.Context, entry Entry) error

	Invalidate(ctx context.Context, source ledger.DataSource) error
	InvalidateAll(ctx context.Context) error

	// Entries lists the current entries, ordered by source
	Entries(ctx context.Context) ([]Entry, error)

	Close() error
}

// stamp fills the entry timestamps before a write
func stamp(entry *Entry, previous *Entry, now time.Time) {
	entry.UpdatedAt = now
	switch {
	case previous != nil && !previous.CreatedAt.IsZero():
		entry.CreatedAt = previous.CreatedAt
	case entry.CreatedAt.IsZero():
		entry.CreatedAt = now
	}
}
