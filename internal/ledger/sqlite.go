package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/storage"
)

// SQLiteLedger reads the ledger tables of a sqlite database
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLiteLedger opens the ledger database at path, migrating it when needed
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := storage.OpenSQLite(path, storage.LedgerSchema)
	if err != nil {
		return nil, err
	}
	return &SQLiteLedger{db: db}, nil
}

// NewSQLiteLedger wraps an already migrated database
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// Close closes the underlying database
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// QueryTransactions implements Reader
func (l *SQLiteLedger) QueryTransactions(ctx context.Context, source DataSource, r analytics.DateRange) ([]Row, error) {
	qs, err := queriesFor(source)
	if err != nil {
		return nil, err
	}
	from, to := rangeArgs(r)

	var rows []Row
	for _, q := range qs {
		part, err := l.query(ctx, q, from, to)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", source, err)
		}
		rows = append(rows, part...)
	}
	sortRows(rows)
	return rows, nil
}

func (l *SQLiteLedger) query(ctx context.Context, q sourceQuery, from, to string) ([]Row, error) {
	res, err := l.db.QueryContext(ctx, q.sqlite, from, to)
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

// InsertInvoice stores an invoice
func (l *SQLiteLedger) InsertInvoice(ctx context.Context, inv Invoice) error {
	status := inv.Status
	if status == "" {
		status = StatusIssued
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invoices (id, customer_name, issue_date, total, status) VALUES (?, ?, ?, ?, ?)`,
		inv.ID, inv.Customer, inv.IssueDate.Format(analytics.DateLayout), inv.Total.String(), status)
	if err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.ID, err)
	}
	return nil
}

// InsertExpense stores an expense
func (l *SQLiteLedger) InsertExpense(ctx context.Context, e Expense) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO expenses (id, expense_date, amount, category, description) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Date.Format(analytics.DateLayout), e.Amount.String(), e.Category, e.Description)
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.ID, err)
	}
	return nil
}

// InsertMovement stores an inventory movement
func (l *SQLiteLedger) InsertMovement(ctx context.Context, mv InventoryMovement) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO inventory_movements (id, movement_date, product_id, quantity, unit_cost) VALUES (?, ?, ?, ?, ?)`,
		mv.ID, mv.Date.Format(analytics.DateLayout), mv.ProductID, mv.Quantity, mv.UnitCost.String())
	if err != nil {
		return fmt.Errorf("insert inventory movement %s: %w", mv.ID, err)
	}
	return nil
}
