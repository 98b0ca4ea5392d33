package session

import (
	"context"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// Store persists forecast sessions together with their denormalized result rows
type Store interface {
	// Save writes the session header and replaces all of its result rows
	// in one atomic step. Saving an existing id overwrites it.
	Save(ctx context.Context, s *Session) error

	GetByID(ctx context.Context, id string) (*Session, error)

	// ListAll and ListByDataSource return sessions newest first
	ListAll(ctx context.Context) ([]*Session, error)
	ListByDataSource(ctx context.Context, source ledger.DataSource) ([]*Session, error)

	// Delete removes the header and every result row, or nothing
	Delete(ctx context.Context, id string) error

	// QueryResults returns result rows of one scenario (all when scenarioID
	// is empty) dated inside r, ordered by scenario then date
	QueryResults(ctx context.Context, sessionID, scenarioID string, r analytics.DateRange) ([]ResultRow, error)

	Close() error
}
