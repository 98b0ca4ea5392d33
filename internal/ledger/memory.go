package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/soltixdb/ledgercast/internal/analytics"
)

// MemoryLedger keeps ledger records in process. Used by tests and the
// memory backend.
type MemoryLedger struct {
	mu        sync.RWMutex
	loc       *time.Location
	invoices  []Invoice
	expenses  []Expense
	movements []InventoryMovement
}

// NewMemoryLedger creates an empty ledger. Record timestamps are assigned to
// calendar days in loc (UTC when nil).
func NewMemoryLedger(loc *time.Location) *MemoryLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryLedger{loc: loc}
}

// AddInvoice records an invoice
func (m *MemoryLedger) AddInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, inv)
}

// AddExpense records an expense
func (m *MemoryLedger) AddExpense(e Expense) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses = append(m.expenses, e)
}

// AddMovement records an inventory movement
func (m *MemoryLedger) AddMovement(mv InventoryMovement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = append(m.movements, mv)
}

// QueryTransactions implements Reader
func (m *MemoryLedger) QueryTransactions(ctx context.Context, source DataSource, r analytics.DateRange) ([]Row, error) {
	if !source.Valid() {
		return nil, &UnknownDataSourceError{Source: string(source)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []Row
	add := func(t time.Time, amount decimal.Decimal, id, kind string) {
		day := m.day(t)
		if r.Contains(day) {
			rows = append(rows, newRow(day, amount, id, kind))
		}
	}

	switch source {
	case Revenue:
		for _, inv := range m.invoices {
			if countsAsRevenue(inv.Status) {
				add(inv.IssueDate, inv.Total, inv.ID, KindInvoice)
			}
		}
	case Expenses:
		for _, e := range m.expenses {
			add(e.Date, e.Amount, e.ID, KindExpense)
		}
	case CashFlow:
		for _, inv := range m.invoices {
			if inv.Status == StatusPaid {
				add(inv.IssueDate, inv.Total, inv.ID, KindInvoice)
			}
		}
		for _, e := range m.expenses {
			add(e.Date, e.Amount.Neg(), e.ID, KindExpense)
		}
	case Inventory:
		for _, mv := range m.movements {
			add(mv.Date, mv.UnitCost.Mul(decimal.NewFromInt(mv.Quantity)), mv.ID, KindMovement)
		}
	}

	sortRows(rows)
	return rows, nil
}

func (m *MemoryLedger) day(t time.Time) time.Time {
	return analytics.TruncateToDay(t.In(m.loc))
}
