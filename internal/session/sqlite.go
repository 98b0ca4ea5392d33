package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/storage"
)

// timestampLayout is fixed width so stored timestamps sort as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// childTables hold per-session rows, deleted before the header
var childTables = []string{"forecast_historical", "forecast_accuracy", "forecast_results", "forecast_scenarios"}

// SQLiteStore keeps sessions in structured sqlite tables
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the session database at path, migrating it when needed
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := storage.OpenSQLite(path, storage.SessionSchema)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an already migrated database
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save implements Store
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO forecast_sessions (id, name, data_source, periodicity, range_from, range_to, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			data_source = excluded.data_source,
			periodicity = excluded.periodicity,
			range_from = excluded.range_from,
			range_to = excluded.range_to,
			created_at = excluded.created_at,
			last_modified = excluded.last_modified`,
		sess.ID, sess.Name, string(sess.DataSource), string(sess.Periodicity),
		formatDate(sess.DateRange.From), formatDate(sess.DateRange.To),
		formatTimestamp(sess.CreatedAt), formatTimestamp(sess.LastModified))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, sess.ID); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, sess.ID, err)
		}
	}

	if err := insertScenarios(ctx, tx, sess); err != nil {
		return err
	}
	if err := insertResults(ctx, tx, sess); err != nil {
		return err
	}
	if err := insertAccuracy(ctx, tx, sess); err != nil {
		return err
	}
	if err := insertHistorical(ctx, tx, sess); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return nil
}

func insertScenarios(ctx context.Context, tx *sql.Tx, sess *Session) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_scenarios (session_id, scenario_id, position, name, description, method, parameters, forecast_horizon, periodicity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare scenario insert: %w", err)
	}
	defer stmt.Close()

	for i, sc := range sess.Scenarios {
		params, err := forecast.EncodeParameters(sc.Parameters)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, sess.ID, sc.ID, i, sc.Name, sc.Description,
			string(sc.Method), string(params), sc.ForecastHorizon, string(sc.Periodicity)); err != nil {
			return fmt.Errorf("insert scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}

func insertResults(ctx context.Context, tx *sql.Tx, sess *Session) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_results (session_id, scenario_id, forecast_date, predicted_value, lower_bound, upper_bound, confidence, method, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range sess.ResultRows() {
		metrics, err := nullableJSON(row.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics for %s: %w", row.ScenarioID, err)
		}
		if _, err := stmt.ExecContext(ctx, row.SessionID, row.ScenarioID, formatDate(row.Date),
			row.PredictedValue, row.LowerBound, row.UpperBound, row.Confidence, string(row.Method), metrics); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", row.ScenarioID, formatDate(row.Date), err)
		}
	}
	return nil
}

func insertAccuracy(ctx context.Context, tx *sql.Tx, sess *Session) error {
	for _, sc := range sess.Scenarios {
		acc, ok := sess.Accuracy[sc.ID]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_accuracy (session_id, scenario_id, r2, mape, rmse, mae, test_size, mape_terms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sc.ID, acc.R2, acc.MAPE, acc.RMSE, acc.MAE, acc.TestSize, acc.MAPETerms); err != nil {
			return fmt.Errorf("insert accuracy %s: %w", sc.ID, err)
		}
	}
	return nil
}

func insertHistorical(ctx context.Context, tx *sql.Tx, sess *Session) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_historical (session_id, position, point_date, value, metadata)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare historical insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range sess.HistoricalData {
		meta, err := nullableJSON(p.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of point %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, sess.ID, i, formatDate(p.Time), p.Value, meta); err != nil {
			return fmt.Errorf("insert historical point %d: %w", i, err)
		}
	}
	return nil
}

// GetByID implements Store
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Session, error) {
	sess := &Session{ID: id}
	var (
		source, periodicity, from, to, created, modified string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, data_source, periodicity, range_from, range_to, created_at, last_modified
		FROM forecast_sessions WHERE id = ?`, id).
		Scan(&sess.Name, &source, &periodicity, &from, &to, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	sess.DataSource = ledger.DataSource(source)
	sess.Periodicity = analytics.Periodicity(periodicity)
	if sess.DateRange.From, err = parseDate(from); err != nil {
		return nil, err
	}
	if sess.DateRange.To, err = parseDate(to); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if sess.LastModified, err = parseTimestamp(modified); err != nil {
		return nil, err
	}

	if sess.Scenarios, err = s.loadScenarios(ctx, id); err != nil {
		return nil, err
	}
	if sess.Results, err = s.loadResults(ctx, id); err != nil {
		return nil, err
	}
	if sess.Accuracy, err = s.loadAccuracy(ctx, id); err != nil {
		return nil, err
	}
	if sess.HistoricalData, err = s.loadHistorical(ctx, id); err != nil {
		return nil, err
	}
	sess.ensureResultEntries()
	return sess, nil
}

func (s *SQLiteStore) loadScenarios(ctx context.Context, id string) ([]Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, name, description, method, parameters, forecast_horizon, periodicity
		FROM forecast_scenarios WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load scenarios of %s: %w", id, err)
	}
	defer rows.Close()

	scenarios := []Scenario{}
	for rows.Next() {
		var (
			sc                    Scenario
			method, params, perio string
		)
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Description, &method, &params, &sc.ForecastHorizon, &perio); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		sc.Method = forecast.Method(method)
		sc.Periodicity = analytics.Periodicity(perio)
		if params != "" && params != "null" {
			if sc.Parameters, err = forecast.DecodeParameters(sc.Method, json.RawMessage(params)); err != nil {
				return nil, fmt.Errorf("scenario %s: %w", sc.ID, err)
			}
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

func (s *SQLiteStore) loadResults(ctx context.Context, id string) (map[string][]forecast.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, forecast_date, predicted_value, lower_bound, upper_bound, confidence, method, metrics
		FROM forecast_results WHERE session_id = ? ORDER BY scenario_id, forecast_date`, id)
	if err != nil {
		return nil, fmt.Errorf("load results of %s: %w", id, err)
	}
	defer rows.Close()

	results := make(map[string][]forecast.Result)
	for rows.Next() {
		row, err := scanResultRow(rows)
		if err != nil {
			return nil, err
		}
		results[row.ScenarioID] = append(results[row.ScenarioID], row.Result)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) loadAccuracy(ctx context.Context, id string) (map[string]forecast.Accuracy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, r2, mape, rmse, mae, test_size, mape_terms
		FROM forecast_accuracy WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load accuracy of %s: %w", id, err)
	}
	defer rows.Close()

	accuracy := make(map[string]forecast.Accuracy)
	for rows.Next() {
		var (
			scenarioID string
			acc        forecast.Accuracy
		)
		if err := rows.Scan(&scenarioID, &acc.R2, &acc.MAPE, &acc.RMSE, &acc.MAE, &acc.TestSize, &acc.MAPETerms); err != nil {
			return nil, fmt.Errorf("scan accuracy: %w", err)
		}
		accuracy[scenarioID] = acc
	}
	return accuracy, rows.Err()
}

func (s *SQLiteStore) loadHistorical(ctx context.Context, id string) ([]analytics.TimeSeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_date, value, metadata
		FROM forecast_historical WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load historical data of %s: %w", id, err)
	}
	defer rows.Close()

	points := []analytics.TimeSeriesPoint{}
	for rows.Next() {
		var (
			date string
			p    analytics.TimeSeriesPoint
			meta sql.NullString
		)
		if err := rows.Scan(&date, &p.Value, &meta); err != nil {
			return nil, fmt.Errorf("scan historical point: %w", err)
		}
		if p.Time, err = parseDate(date); err != nil {
			return nil, err
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode point metadata: %w", err)
			}
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListAll implements Store
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*Session, error) {
	return s.list(ctx, `SELECT id FROM forecast_sessions ORDER BY created_at DESC, id`)
}

// ListByDataSource implements Store
func (s *SQLiteStore) ListByDataSource(ctx context.Context, source ledger.DataSource) ([]*Session, error) {
	return s.list(ctx, `SELECT id FROM forecast_sessions WHERE data_source = ? ORDER BY created_at DESC, id`, string(source))
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...interface{}) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	// the id cursor must be closed before loading on the single connection
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Delete implements Store
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s for %s: %w", table, id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM forecast_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete of %s: %w", id, err)
	}
	return nil
}

// QueryResults implements Store
func (s *SQLiteStore) QueryResults(ctx context.Context, sessionID, scenarioID string, r analytics.DateRange) ([]ResultRow, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM forecast_sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", sessionID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.scenario_id, r.forecast_date, r.predicted_value, r.lower_bound, r.upper_bound, r.confidence, r.method, r.metrics
		FROM forecast_results r
		JOIN forecast_scenarios s ON s.session_id = r.session_id AND s.scenario_id = r.scenario_id
		WHERE r.session_id = ? AND (? = '' OR r.scenario_id = ?) AND r.forecast_date BETWEEN ? AND ?
		ORDER BY s.position, r.forecast_date`,
		sessionID, scenarioID, scenarioID, formatDate(r.From), formatDate(r.To))
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := []ResultRow{}
	for rows.Next() {
		row, err := scanResultRow(rows)
		if err != nil {
			return nil, err
		}
		row.SessionID = sessionID
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanResultRow(rows *sql.Rows) (ResultRow, error) {
	var (
		row     ResultRow
		date    string
		method  string
		metrics sql.NullString
	)
	if err := rows.Scan(&row.ScenarioID, &date, &row.PredictedValue, &row.LowerBound, &row.UpperBound,
		&row.Confidence, &method, &metrics); err != nil {
		return ResultRow{}, fmt.Errorf("scan result: %w", err)
	}
	var err error
	if row.Date, err = parseDate(date); err != nil {
		return ResultRow{}, err
	}
	row.Method = forecast.Method(method)
	if metrics.Valid {
		if err := json.Unmarshal([]byte(metrics.String), &row.Metrics); err != nil {
			return ResultRow{}, fmt.Errorf("decode result metrics: %w", err)
		}
	}
	return row, nil
}

func nullableJSON[T any](v map[string]T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func formatDate(t time.Time) string {
	return t.Format(analytics.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(analytics.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
