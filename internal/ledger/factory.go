package ledger

import (
	"context"
	"fmt"

	"github.com/soltixdb/ledgercast/internal/config"
)

// Opened is a Reader together with the function releasing its connections
type Opened struct {
	Reader
	Close func() error
}

// New opens the ledger backend selected by cfg.Backend. The memory backend
// starts empty.
func New(ctx context.Context, cfg config.LedgerConfig) (*Opened, error) {
	switch cfg.Backend {
	case "memory", "":
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return &Opened{Reader: NewMemoryLedger(loc), Close: func() error { return nil }}, nil

	case "sqlite":
		l, err := OpenSQLiteLedger(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Opened{Reader: l, Close: l.Close}, nil

	case "postgres":
		pool, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Opened{
			Reader: NewPostgresLedger(pool),
			Close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Backend)
	}
}
