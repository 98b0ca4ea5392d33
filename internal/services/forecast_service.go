package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/ledgercast/internal/aggregation"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/cache"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/metrics"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/soltixdb/ledgercast/internal/session"
)

// ErrNoScoredScenario is returned when no scenario of a session has accuracy metrics
var ErrNoScoredScenario = errors.New("no scenario in the session has accuracy metrics")

// Dependencies are the collaborators of a ForecastService. Events and
// Metrics are optional.
type Dependencies struct {
	Ledger  ledger.Reader
	Cache   cache.HistoricalDataCache
	Store   session.Store
	Events  *queue.Emitter
	Metrics *metrics.Metrics
}

// ForecastService turns ledger history into forecast sessions
type ForecastService struct {
	logger   *logging.Logger
	ledger   ledger.Reader
	cache    cache.HistoricalDataCache
	store    session.Store
	events   *queue.Emitter
	metrics  *metrics.Metrics
	runner   *ScenarioRunner
	cacheCfg config.CacheConfig
	now      func() time.Time
}

// NewForecastService creates a new ForecastService
func NewForecastService(
	logger *logging.Logger,
	deps Dependencies,
	forecastCfg config.ForecastConfig,
	cacheCfg config.CacheConfig,
) *ForecastService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Events == nil {
		deps.Events = queue.NewEmitter(nil, logger)
	}
	return &ForecastService{
		logger:   logger.Component("forecast_service"),
		ledger:   deps.Ledger,
		cache:    deps.Cache,
		store:    deps.Store,
		events:   deps.Events,
		metrics:  deps.Metrics,
		runner:   NewScenarioRunner(forecastCfg, logger, deps.Metrics),
		cacheCfg: cacheCfg,
		now:      time.Now,
	}
}

// Runner returns the scenario runner used by the service
func (s *ForecastService) Runner() *ScenarioRunner {
	return s.runner
}

// alignRange widens r to whole periods of p, so cached windows and
// aggregated points always describe complete periods
func alignRange(r analytics.DateRange, p analytics.Periodicity) analytics.DateRange {
	from := p.PeriodStart(r.From)
	to := p.Step(p.PeriodStart(r.To), 1).AddDate(0, 0, -1)
	return analytics.DateRange{From: from, To: to}
}

func validateQuery(source ledger.DataSource, r analytics.DateRange, p analytics.Periodicity) error {
	if !source.Valid() {
		return &UnknownDataSourceError{Source: string(source)}
	}
	if !p.Valid() {
		return &ValidationError{Field: "periodicity", Reason: fmt.Sprintf("unsupported periodicity %q", p)}
	}
	if err := r.Validate(); err != nil {
		return &ValidationError{Field: "date_range", Reason: err.Error()}
	}
	return nil
}

// GetHistoricalData returns the series of source aggregated at p over r.
// The range is widened to whole periods. A cache miss reads the ledger and
// replaces the source's cache entry.
func (s *ForecastService) GetHistoricalData(ctx context.Context, source ledger.DataSource, r analytics.DateRange, p analytics.Periodicity) ([]analytics.TimeSeriesPoint, error) {
	if err := validateQuery(source, r, p); err != nil {
		return nil, err
	}
	window := alignRange(r, p)

	points, hit, err := s.cache.Get(ctx, source, window, p)
	if err != nil {
		return nil, persistenceError("read historical cache", err)
	}
	s.metrics.ObserveCache(string(source), hit)
	if hit {
		s.logger.Debug("Historical cache hit", "data_source", string(source), "range", window.String(), "points", len(points))
		return points, nil
	}

	return s.regenerate(ctx, source, window, p)
}

// regenerate aggregates the ledger rows of window and stores them as the source's entry
func (s *ForecastService) regenerate(ctx context.Context, source ledger.DataSource, window analytics.DateRange, p analytics.Periodicity) ([]analytics.TimeSeriesPoint, error) {
	rows, err := s.ledger.QueryTransactions(ctx, source, window)
	if err != nil {
		return nil, persistenceError("query ledger", err)
	}

	points := aggregation.Aggregate(ledger.Points(rows), p)

	entry := cache.Entry{
		Source:      source,
		Periodicity: p,
		Range:       window,
		Points:      points,
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, persistenceError("write historical cache", err)
	}

	s.logger.Debug("Historical cache regenerated",
		"data_source", string(source),
		"range", window.String(),
		"rows", len(rows),
		"points", len(points))
	return points, nil
}

// RefreshReport lists the outcome of a bulk cache refresh
type RefreshReport struct {
	Refreshed []ledger.DataSource
	Failed    []*CacheRegenerationError
}

// defaultWindow covers the configured number of periods ending with today's period
func (s *ForecastService) defaultWindow() (analytics.DateRange, analytics.Periodicity) {
	p := analytics.Periodicity(s.cacheCfg.DefaultPeriodicity)
	if !p.Valid() {
		p = analytics.Monthly
	}
	lookback := s.cacheCfg.DefaultLookback
	if lookback < 1 {
		lookback = 1
	}
	today := analytics.TruncateToDay(s.now())
	from := p.Step(p.PeriodStart(today), -(lookback - 1))
	return alignRange(analytics.DateRange{From: from, To: today}, p), p
}

// RefreshCache clears every cached source and regenerates each one, reusing
// the previous entry's window and periodicity or the configured default.
// A source that fails to regenerate is reported and the others continue.
func (s *ForecastService) RefreshCache(ctx context.Context) (*RefreshReport, error) {
	entries, err := s.cache.Entries(ctx)
	if err != nil {
		return nil, persistenceError("list historical cache", err)
	}
	previous := make(map[ledger.DataSource]cache.Entry, len(entries))
	for _, e := range entries {
		previous[e.Source] = e
	}

	if err := s.cache.InvalidateAll(ctx); err != nil {
		return nil, persistenceError("clear historical cache", err)
	}

	report := &RefreshReport{}
	for _, source := range ledger.DataSources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		window, p := s.defaultWindow()
		if e, ok := previous[source]; ok {
			window, p = e.Range, e.Periodicity
		}

		if _, err := s.regenerate(ctx, source, window, p); err != nil {
			regenErr := &CacheRegenerationError{Source: source, Err: err}
			report.Failed = append(report.Failed, regenErr)
			s.metrics.CacheRefreshFailed(string(source))
			s.logger.Warn("Cache regeneration failed", "data_source", string(source), "error", err)
			continue
		}
		report.Refreshed = append(report.Refreshed, source)
	}

	event := queue.CacheRefreshedEvent{Timestamp: s.now().UTC()}
	for _, src := range report.Refreshed {
		event.Refreshed = append(event.Refreshed, string(src))
	}
	if len(report.Failed) > 0 {
		event.Failed = make(map[string]string, len(report.Failed))
		for _, f := range report.Failed {
			event.Failed[string(f.Source)] = f.Err.Error()
		}
	}
	s.events.Emit(ctx, queue.SubjectCacheRefreshed, event)

	s.logger.Info("Cache refreshed", "refreshed", len(report.Refreshed), "failed", len(report.Failed))
	return report, nil
}

// InvalidateSource drops the cached series of one source
func (s *ForecastService) InvalidateSource(ctx context.Context, source ledger.DataSource) error {
	if !source.Valid() {
		return &UnknownDataSourceError{Source: string(source)}
	}
	return persistenceError("invalidate historical cache", s.cache.Invalidate(ctx, source))
}

// CreateSessionRequest describes a new forecast session
type CreateSessionRequest struct {
	Name        string
	DataSource  ledger.DataSource
	Periodicity analytics.Periodicity
	DateRange   analytics.DateRange
	Scenarios   []session.Scenario
}

// prepareScenarios fills missing ids and periodicities and validates the
// scenarios against p and the ids already taken
func prepareScenarios(scenarios []session.Scenario, p analytics.Periodicity, taken map[string]bool) ([]session.Scenario, error) {
	if len(scenarios) == 0 {
		return nil, &ValidationError{Field: "scenarios", Reason: "at least one scenario is required"}
	}

	seen := make(map[string]bool, len(taken)+len(scenarios))
	for id := range taken {
		seen[id] = true
	}

	out := make([]session.Scenario, len(scenarios))
	for i, sc := range scenarios {
		if strings.TrimSpace(sc.ID) == "" {
			sc.ID = uuid.New().String()
		}
		if sc.Periodicity == "" {
			sc.Periodicity = p
		}
		if sc.Periodicity != p {
			return nil, &ValidationError{
				Field:  "scenarios",
				Reason: fmt.Sprintf("scenario %s uses periodicity %s but the session is %s", sc.ID, sc.Periodicity, p),
			}
		}
		if err := sc.Validate(); err != nil {
			return nil, &ValidationError{Field: "scenarios", Reason: err.Error()}
		}
		if seen[sc.ID] {
			return nil, &ValidationError{Field: "scenarios", Reason: "duplicate scenario id " + sc.ID}
		}
		seen[sc.ID] = true
		out[i] = sc
	}
	return out, nil
}

// CreateSession aggregates the history, evaluates every scenario and saves
// the session. Nothing is persisted when the history is too short.
func (s *ForecastService) CreateSession(ctx context.Context, req CreateSessionRequest) (*session.Session, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "session name is required"}
	}
	if err := validateQuery(req.DataSource, req.DateRange, req.Periodicity); err != nil {
		return nil, err
	}
	scenarios, err := prepareScenarios(req.Scenarios, req.Periodicity, nil)
	if err != nil {
		return nil, err
	}

	historical, err := s.GetHistoricalData(ctx, req.DataSource, req.DateRange, req.Periodicity)
	if err != nil {
		return nil, err
	}

	run, err := s.runner.Run(ctx, historical, scenarios)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &session.Session{
		ID:             uuid.New().String(),
		Name:           req.Name,
		DataSource:     req.DataSource,
		Periodicity:    req.Periodicity,
		DateRange:      req.DateRange,
		CreatedAt:      now,
		LastModified:   now,
		Scenarios:      scenarios,
		Results:        run.Results,
		Accuracy:       run.Accuracy,
		HistoricalData: analytics.TimeSeriesData(historical).Clone(),
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, persistenceError("save session", err)
	}

	s.metrics.SessionCreated()
	s.emitSaved(ctx, sess, run.Failed, false)

	s.logger.Info("Forecast session created",
		"session_id", sess.ID,
		"data_source", string(sess.DataSource),
		"periodicity", string(sess.Periodicity),
		"scenarios", len(scenarios),
		"failed", len(run.Failed),
		"points", len(historical))

	return sess, nil
}

func (s *ForecastService) emitSaved(ctx context.Context, sess *session.Session, failed []string, rerun bool) {
	ids := make([]string, len(sess.Scenarios))
	for i, sc := range sess.Scenarios {
		ids[i] = sc.ID
	}
	s.events.Emit(ctx, queue.SubjectSessionSaved, queue.SessionSavedEvent{
		SessionID:       sess.ID,
		Name:            sess.Name,
		DataSource:      string(sess.DataSource),
		Periodicity:     string(sess.Periodicity),
		Scenarios:       ids,
		FailedScenarios: failed,
		Rerun:           rerun,
		Timestamp:       sess.LastModified,
	})
}

// load reads a session, keeping ErrSessionNotFound matchable
func (s *ForecastService) load(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		return nil, persistenceError("load session", err)
	}
	return sess, nil
}

// apply merges a run into the session, replacing the results of the evaluated scenarios
func apply(sess *session.Session, scenarios []session.Scenario, run *RunResult) {
	if sess.Results == nil {
		sess.Results = make(map[string][]forecast.Result, len(scenarios))
	}
	if sess.Accuracy == nil {
		sess.Accuracy = make(map[string]forecast.Accuracy, len(scenarios))
	}
	for _, sc := range scenarios {
		sess.Results[sc.ID] = run.Results[sc.ID]
		if acc, ok := run.Accuracy[sc.ID]; ok {
			sess.Accuracy[sc.ID] = acc
		} else {
			delete(sess.Accuracy, sc.ID)
		}
	}
}

// RerunSession re-evaluates scenarios of a saved session against its stored
// history. An empty scenarioIDs re-runs every scenario.
func (s *ForecastService) RerunSession(ctx context.Context, id string, scenarioIDs []string) (*session.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	selected := sess.Scenarios
	if len(scenarioIDs) > 0 {
		selected = make([]session.Scenario, 0, len(scenarioIDs))
		for _, sid := range scenarioIDs {
			sc, ok := sess.Scenario(sid)
			if !ok {
				return nil, NewServiceErrorWithDetails(CodeScenarioNotFound,
					fmt.Sprintf("scenario %s not found in session %s", sid, id),
					map[string]interface{}{"session_id": id, "scenario_id": sid})
			}
			selected = append(selected, sc)
		}
	}

	run, err := s.runner.Run(ctx, sess.HistoricalData, selected)
	if err != nil {
		return nil, err
	}

	apply(sess, selected, run)
	sess.LastModified = s.now().UTC()

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, persistenceError("save session", err)
	}

	s.metrics.SessionRerun()
	s.emitSaved(ctx, sess, run.Failed, true)

	s.logger.Info("Forecast session re-run",
		"session_id", sess.ID,
		"scenarios", len(selected),
		"failed", len(run.Failed))

	return sess, nil
}

// AddScenarios evaluates new scenarios against the session history and appends them
func (s *ForecastService) AddScenarios(ctx context.Context, id string, scenarios []session.Scenario) (*session.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool, len(sess.Scenarios))
	for _, sc := range sess.Scenarios {
		taken[sc.ID] = true
	}
	added, err := prepareScenarios(scenarios, sess.Periodicity, taken)
	if err != nil {
		return nil, err
	}

	run, err := s.runner.Run(ctx, sess.HistoricalData, added)
	if err != nil {
		return nil, err
	}

	sess.Scenarios = append(sess.Scenarios, added...)
	apply(sess, added, run)
	sess.LastModified = s.now().UTC()

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, persistenceError("save session", err)
	}

	s.emitSaved(ctx, sess, run.Failed, true)
	s.logger.Info("Scenarios added", "session_id", sess.ID, "added", len(added), "failed", len(run.Failed))

	return sess, nil
}

// GetSession returns one session
func (s *ForecastService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.load(ctx, id)
}

// ListSessions returns every session, newest first
func (s *ForecastService) ListSessions(ctx context.Context) ([]*session.Session, error) {
	sessions, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, persistenceError("list sessions", err)
	}
	return sessions, nil
}

// ListSessionsByDataSource returns the sessions of one source, newest first
func (s *ForecastService) ListSessionsByDataSource(ctx context.Context, source ledger.DataSource) ([]*session.Session, error) {
	if !source.Valid() {
		return nil, &UnknownDataSourceError{Source: string(source)}
	}
	sessions, err := s.store.ListByDataSource(ctx, source)
	if err != nil {
		return nil, persistenceError("list sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its result rows
func (s *ForecastService) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("session %s: %w", id, err)
		}
		return persistenceError("delete session", err)
	}

	s.metrics.SessionDeleted()
	s.events.Emit(ctx, queue.SubjectSessionDeleted, queue.SessionDeletedEvent{
		SessionID: id,
		Timestamp: s.now().UTC(),
	})
	s.logger.Info("Forecast session deleted", "session_id", id)
	return nil
}

// QueryResults returns stored forecast rows of a session inside r.
// An empty scenarioID selects every scenario.
func (s *ForecastService) QueryResults(ctx context.Context, sessionID, scenarioID string, r analytics.DateRange) ([]session.ResultRow, error) {
	if err := r.Validate(); err != nil {
		return nil, &ValidationError{Field: "date_range", Reason: err.Error()}
	}
	rows, err := s.store.QueryResults(ctx, sessionID, scenarioID, r)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		return nil, persistenceError("query results", err)
	}
	return rows, nil
}

// SelectBest picks the scenario with the highest R² among those with
// accuracy metrics and a non-empty forecast. Ties keep the earlier scenario.
func SelectBest(sess *session.Session) (session.ScenarioResult, bool) {
	var (
		best  session.ScenarioResult
		found bool
	)
	for _, sr := range sess.OrderedResults() {
		if sr.Accuracy == nil || len(sr.Results) == 0 {
			continue
		}
		if !found || sr.Accuracy.R2 > best.Accuracy.R2 {
			best = sr
			found = true
		}
	}
	return best, found
}

// BestScenario returns the best scored scenario of a session
func (s *ForecastService) BestScenario(ctx context.Context, id string) (*session.ScenarioResult, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	best, ok := SelectBest(sess)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNoScoredScenario)
	}
	return &best, nil
}

// ScenarioAccuracy is one row of an accuracy summary
type ScenarioAccuracy struct {
	ScenarioID string             `json:"scenario_id"`
	Name       string             `json:"name"`
	Method     forecast.Method    `json:"method"`
	Forecasted bool               `json:"forecasted"`
	Accuracy   *forecast.Accuracy `json:"accuracy,omitempty"`
}

// AccuracySummary aggregates the accuracy metrics of a session
type AccuracySummary struct {
	SessionID      string             `json:"session_id"`
	Scenarios      []ScenarioAccuracy `json:"scenarios"`
	BestScenarioID string             `json:"best_scenario_id,omitempty"`
	Scored         int                `json:"scored"`
	Failed         int                `json:"failed"`
	MeanR2         float64            `json:"mean_r2"`
	MeanRMSE       float64            `json:"mean_rmse"`
	// MeanMAPE averages only the MAPEScored scenarios with a defined MAPE
	MeanMAPE   float64 `json:"mean_mape"`
	MAPEScored int     `json:"mape_scored"`
}

// Summarize builds the accuracy summary of a session
func Summarize(sess *session.Session) *AccuracySummary {
	summary := &AccuracySummary{
		SessionID: sess.ID,
		Scenarios: make([]ScenarioAccuracy, 0, len(sess.Scenarios)),
	}

	for _, sr := range sess.OrderedResults() {
		row := ScenarioAccuracy{
			ScenarioID: sr.Scenario.ID,
			Name:       sr.Scenario.Name,
			Method:     sr.Scenario.Method,
			Forecasted: len(sr.Results) > 0,
			Accuracy:   sr.Accuracy,
		}
		summary.Scenarios = append(summary.Scenarios, row)

		if !row.Forecasted {
			summary.Failed++
			continue
		}
		if sr.Accuracy != nil {
			summary.Scored++
			summary.MeanR2 += sr.Accuracy.R2
			summary.MeanRMSE += sr.Accuracy.RMSE
			if sr.Accuracy.HasMAPE() {
				summary.MAPEScored++
				summary.MeanMAPE += sr.Accuracy.MAPE
			}
		}
	}

	if summary.Scored > 0 {
		n := float64(summary.Scored)
		summary.MeanR2 /= n
		summary.MeanRMSE /= n
	}
	if summary.MAPEScored > 0 {
		summary.MeanMAPE /= float64(summary.MAPEScored)
	}
	if best, ok := SelectBest(sess); ok {
		summary.BestScenarioID = best.Scenario.ID
	}
	return summary
}

// AccuracySummary returns the accuracy summary of a session
func (s *ForecastService) AccuracySummary(ctx context.Context, id string) (*AccuracySummary, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return Summarize(sess), nil
}
