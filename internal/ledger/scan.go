package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/soltixdb/ledgercast/internal/analytics"
)

// rawRow is one scanned result row before amount parsing
type rawRow struct {
	id       string
	date     string
	amount   string
	quantity int64
}

func (q sourceQuery) toRow(raw rawRow) (Row, error) {
	date, err := time.Parse(analytics.DateLayout, raw.date)
	if err != nil {
		return Row{}, fmt.Errorf("%s %s: invalid date %q: %w", q.kind, raw.id, raw.date, err)
	}
	amount, err := decimal.NewFromString(raw.amount)
	if err != nil {
		return Row{}, fmt.Errorf("%s %s: invalid amount %q: %w", q.kind, raw.id, raw.amount, err)
	}
	amount = amount.Mul(decimal.NewFromInt(raw.quantity))
	if q.negate {
		amount = amount.Neg()
	}
	return newRow(date, amount, raw.id, q.kind), nil
}

// sortRows orders rows from several queries by date, keeping query order for ties
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}

func rangeArgs(r analytics.DateRange) (string, string) {
	return r.From.Format(analytics.DateLayout), r.To.Format(analytics.DateLayout)
}
