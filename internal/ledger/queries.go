package ledger

// sourceQuery selects (id, date, amount, quantity) rows for one part of a
// data source. The row value is amount × quantity, negated when negate is set.
type sourceQuery struct {
	kind     string
	negate   bool
	sqlite   string
	postgres string
}

var sourceQueries = map[DataSource][]sourceQuery{
	Revenue: {invoiceQuery(`status NOT IN ('draft', 'cancelled')`)},
	Expenses: {{
		kind: KindExpense,
		sqlite: `SELECT id, expense_date, amount, 1 FROM expenses
			WHERE expense_date BETWEEN ? AND ? ORDER BY expense_date, id`,
		postgres: `SELECT id, to_char(expense_date, 'YYYY-MM-DD'), amount::text, 1::bigint FROM expenses
			WHERE expense_date BETWEEN $1 AND $2 ORDER BY expense_date, id`,
	}},
	CashFlow: {
		invoiceQuery(`status = 'paid'`),
		{
			kind:   KindExpense,
			negate: true,
			sqlite: `SELECT id, expense_date, amount, 1 FROM expenses
				WHERE expense_date BETWEEN ? AND ? ORDER BY expense_date, id`,
			postgres: `SELECT id, to_char(expense_date, 'YYYY-MM-DD'), amount::text, 1::bigint FROM expenses
				WHERE expense_date BETWEEN $1 AND $2 ORDER BY expense_date, id`,
		},
	},
	Inventory: {{
		kind: KindMovement,
		sqlite: `SELECT id, movement_date, unit_cost, quantity FROM inventory_movements
			WHERE movement_date BETWEEN ? AND ? ORDER BY movement_date, id`,
		postgres: `SELECT id, to_char(movement_date, 'YYYY-MM-DD'), unit_cost::text, quantity::bigint FROM inventory_movements
			WHERE movement_date BETWEEN $1 AND $2 ORDER BY movement_date, id`,
	}},
}

func invoiceQuery(filter string) sourceQuery {
	return sourceQuery{
		kind: KindInvoice,
		sqlite: `SELECT id, issue_date, total, 1 FROM invoices
			WHERE ` + filter + ` AND issue_date BETWEEN ? AND ? ORDER BY issue_date, id`,
		postgres: `SELECT id, to_char(issue_date, 'YYYY-MM-DD'), total::text, 1::bigint FROM invoices
			WHERE ` + filter + ` AND issue_date BETWEEN $1 AND $2 ORDER BY issue_date, id`,
	}
}

func queriesFor(source DataSource) ([]sourceQuery, error) {
	qs, ok := sourceQueries[source]
	if !ok {
		return nil, &UnknownDataSourceError{Source: string(source)}
	}
	return qs, nil
}
