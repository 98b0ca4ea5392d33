// Package ledger reads raw transactional history (invoices, expenses and
// inventory movements) and maps it to the per-source rows the aggregator
// consumes.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/soltixdb/ledgercast/internal/analytics"
)

// DataSource names a ledger-derived series
type DataSource string

const (
	Revenue   DataSource = "revenue"
	Expenses  DataSource = "expenses"
	CashFlow  DataSource = "cash_flow"
	Inventory DataSource = "inventory"
)

// DataSources lists every source with an aggregation rule, in refresh order
var DataSources = []DataSource{Revenue, Expenses, CashFlow, Inventory}

// UnknownDataSourceError is returned for a source without an aggregation rule
type UnknownDataSourceError struct {
	Source string
}

func (e *UnknownDataSourceError) Error() string {
	return fmt.Sprintf("unknown data source: %q", e.Source)
}

// ParseDataSource validates a data source name
func ParseDataSource(s string) (DataSource, error) {
	ds := DataSource(strings.ToLower(strings.TrimSpace(s)))
	if !ds.Valid() {
		return "", &UnknownDataSourceError{Source: s}
	}
	return ds, nil
}

// Valid reports whether the source has an aggregation rule
func (d DataSource) Valid() bool {
	for _, s := range DataSources {
		if s == d {
			return true
		}
	}
	return false
}

func (d DataSource) String() string { return string(d) }

// Row is one dated ledger amount attributed to a data source
type Row struct {
	Date     time.Time
	Amount   decimal.Decimal
	Metadata map[string]interface{}
}

// Point converts the row into an aggregator input point
func (r Row) Point() analytics.TimeSeriesPoint {
	return analytics.TimeSeriesPoint{
		Time:     r.Date,
		Value:    r.Amount.InexactFloat64(),
		Metadata: r.Metadata,
	}
}

// Points converts rows in order
func Points(rows []Row) []analytics.TimeSeriesPoint {
	out := make([]analytics.TimeSeriesPoint, len(rows))
	for i, r := range rows {
		out[i] = r.Point()
	}
	return out
}

// Reader is the read-only ledger query interface
type Reader interface {
	QueryTransactions(ctx context.Context, source DataSource, r analytics.DateRange) ([]Row, error)
}

// Invoice statuses
const (
	StatusDraft     = "draft"
	StatusIssued    = "issued"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Invoice is a customer invoice
type Invoice struct {
	ID        string
	Customer  string
	IssueDate time.Time
	Total     decimal.Decimal
	Status    string
}

// Expense is a single outgoing payment
type Expense struct {
	ID          string
	Date        time.Time
	Amount      decimal.Decimal
	Category    string
	Description string
}

// InventoryMovement records stock entering (positive quantity) or leaving
// (negative quantity) at a unit cost
type InventoryMovement struct {
	ID        string
	Date      time.Time
	ProductID string
	Quantity  int64
	UnitCost  decimal.Decimal
}

// Metadata keys attached to rows
const (
	MetaID   = "id"
	MetaKind = "kind"
)

// Row kinds
const (
	KindInvoice  = "invoice"
	KindExpense  = "expense"
	KindMovement = "inventory_movement"
)

// countsAsRevenue reports whether an invoice in status contributes to revenue
func countsAsRevenue(status string) bool {
	return status != StatusDraft && status != StatusCancelled
}

func newRow(date time.Time, amount decimal.Decimal, id, kind string) Row {
	return Row{
		Date:   analytics.TruncateToDay(date),
		Amount: amount,
		Metadata: map[string]interface{}{
			MetaID:   id,
			MetaKind: kind,
		},
	}
}
