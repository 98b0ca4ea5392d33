package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soltixdb/ledgercast/internal/analytics"
)

// PgxQuerier is the subset of pgxpool.Pool used by PostgresLedger
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresLedger reads ledger tables stored in PostgreSQL, where dates are
// DATE columns and amounts NUMERIC
type PostgresLedger struct {
	db PgxQuerier
}

// NewPostgresLedger creates a reader on top of a pool or a test double
func NewPostgresLedger(db PgxQuerier) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// OpenPostgres connects a pool and verifies it with a ping
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// QueryTransactions implements Reader
func (l *PostgresLedger) QueryTransactions(ctx context.Context, source DataSource, r analytics.DateRange) ([]Row, error) {
	qs, err := queriesFor(source)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, q := range qs {
		part, err := l.query(ctx, q, r)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", source, err)
		}
		rows = append(rows, part...)
	}
	sortRows(rows)
	return rows, nil
}

func (l *PostgresLedger) query(ctx context.Context, q sourceQuery, r analytics.DateRange) ([]Row, error) {
	res, err := l.db.Query(ctx, q.postgres, r.From, r.To)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var rows []Row
	for res.Next() {
		var raw rawRow
		if err := res.Scan(&raw.id, &raw.date, &raw.amount, &raw.quantity); err != nil {
			return nil, err
		}
		row, err := q.toRow(raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, res.Err()
}
