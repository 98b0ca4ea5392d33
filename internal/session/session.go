// Package session defines forecast sessions and the stores that persist them.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// ErrSessionNotFound is returned when a session id is unknown to the store
var ErrSessionNotFound = errors.New("forecast session not found")

// Scenario is one named forecasting configuration evaluated within a session
type Scenario struct {
	ID              string
	Name            string
	Description     string
	Method          forecast.Method
	Parameters      forecast.Parameters // nil means the method defaults
	ForecastHorizon int
	Periodicity     analytics.Periodicity
}

// NewScenario creates a scenario with a generated id
func NewScenario(name string, method forecast.Method, params forecast.Parameters, horizon int, p analytics.Periodicity) Scenario {
	return Scenario{
		ID:              uuid.New().String(),
		Name:            name,
		Method:          method,
		Parameters:      params,
		ForecastHorizon: horizon,
		Periodicity:     p,
	}
}

// Validate checks the scenario fields. Parameters are validated against the method.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("scenario id is required")
	}
	if !s.Method.Valid() {
		return fmt.Errorf("scenario %s: %w: %q", s.ID, forecast.ErrUnknownMethod, s.Method)
	}
	if s.ForecastHorizon <= 0 {
		return fmt.Errorf("scenario %s: forecast horizon must be positive, got %d", s.ID, s.ForecastHorizon)
	}
	if s.Periodicity != "" && !s.Periodicity.Valid() {
		return fmt.Errorf("scenario %s: invalid periodicity %q", s.ID, s.Periodicity)
	}
	if s.Parameters != nil {
		if s.Parameters.Method() != s.Method {
			return fmt.Errorf("scenario %s: %s parameters given for method %s", s.ID, s.Parameters.Method(), s.Method)
		}
		if err := s.Parameters.Validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", s.ID, err)
		}
	}
	return nil
}

// Params returns the scenario parameters, falling back to the method defaults
func (s Scenario) Params() (forecast.Parameters, error) {
	if s.Parameters != nil {
		return s.Parameters, nil
	}
	return forecast.DefaultParameters(s.Method)
}

type scenarioJSON struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	Method          forecast.Method       `json:"method"`
	Parameters      json.RawMessage       `json:"parameters,omitempty"`
	ForecastHorizon int                   `json:"forecast_horizon"`
	Periodicity     analytics.Periodicity `json:"periodicity,omitempty"`
}

// MarshalJSON encodes the parameters through forecast.EncodeParameters
func (s Scenario) MarshalJSON() ([]byte, error) {
	params, err := forecast.EncodeParameters(s.Parameters)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scenarioJSON{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Method:          s.Method,
		Parameters:      params,
		ForecastHorizon: s.ForecastHorizon,
		Periodicity:     s.Periodicity,
	})
}

// UnmarshalJSON decodes parameters into the typed set of the scenario method.
// Missing or null parameters stay nil.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	var raw scenarioJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Scenario{
		ID:              raw.ID,
		Name:            raw.Name,
		Description:     raw.Description,
		Method:          raw.Method,
		ForecastHorizon: raw.ForecastHorizon,
		Periodicity:     raw.Periodicity,
	}
	trimmed := strings.TrimSpace(string(raw.Parameters))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	params, err := forecast.DecodeParameters(raw.Method, raw.Parameters)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", raw.ID, err)
	}
	s.Parameters = params
	return nil
}

// Session is one forecast run over a data source and the scenarios it evaluated
type Session struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	DataSource     ledger.DataSource            `json:"data_source"`
	Periodicity    analytics.Periodicity        `json:"periodicity"`
	DateRange      analytics.DateRange          `json:"date_range"`
	CreatedAt      time.Time                    `json:"created_at"`
	LastModified   time.Time                    `json:"last_modified"`
	Scenarios      []Scenario                   `json:"scenarios"`
	Results        map[string][]forecast.Result `json:"results"`
	Accuracy       map[string]forecast.Accuracy `json:"accuracy_metrics"`
	HistoricalData []analytics.TimeSeriesPoint  `json:"historical_data"`
}

// Validate checks the header fields and scenarios
func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if !s.DataSource.Valid() {
		return &ledger.UnknownDataSourceError{Source: string(s.DataSource)}
	}
	if !s.Periodicity.Valid() {
		return fmt.Errorf("invalid periodicity %q", s.Periodicity)
	}
	seen := make(map[string]bool, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		if err := sc.Validate(); err != nil {
			return err
		}
		if seen[sc.ID] {
			return fmt.Errorf("duplicate scenario id %s", sc.ID)
		}
		seen[sc.ID] = true
	}
	return nil
}

// Scenario looks up a scenario by id
func (s *Session) Scenario(id string) (Scenario, bool) {
	for _, sc := range s.Scenarios {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scenario{}, false
}

// ScenarioResult pairs a scenario with its forecast and accuracy
type ScenarioResult struct {
	Scenario Scenario           `json:"scenario"`
	Results  []forecast.Result  `json:"results"`
	Accuracy *forecast.Accuracy `json:"accuracy,omitempty"`
}

// OrderedResults returns the results in scenario order
func (s *Session) OrderedResults() []ScenarioResult {
	out := make([]ScenarioResult, 0, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		sr := ScenarioResult{Scenario: sc, Results: s.Results[sc.ID]}
		if acc, ok := s.Accuracy[sc.ID]; ok {
			sr.Accuracy = &acc
		}
		out = append(out, sr)
	}
	return out
}

// Clone deep-copies the session so the copy shares no maps or slices
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Scenarios = append([]Scenario(nil), s.Scenarios...)
	for i := range out.Scenarios {
		out.Scenarios[i].Parameters = cloneParams(out.Scenarios[i].Parameters)
	}
	if s.Results != nil {
		out.Results = make(map[string][]forecast.Result, len(s.Results))
		for id, rs := range s.Results {
			out.Results[id] = cloneResults(rs)
		}
	}
	if s.Accuracy != nil {
		out.Accuracy = make(map[string]forecast.Accuracy, len(s.Accuracy))
		for id, acc := range s.Accuracy {
			out.Accuracy[id] = acc
		}
	}
	out.HistoricalData = analytics.TimeSeriesData(s.HistoricalData).Clone()
	return &out
}

// cloneParams copies the slice-backed parameter sets
func cloneParams(p forecast.Parameters) forecast.Parameters {
	switch v := p.(type) {
	case forecast.MovingAverageParams:
		v.Weights = append([]float64(nil), v.Weights...)
		return v
	case forecast.EnsembleParams:
		v.Members = append([]forecast.Method(nil), v.Members...)
		return v
	default:
		return p
	}
}

func cloneResults(rs []forecast.Result) []forecast.Result {
	if rs == nil {
		return nil
	}
	out := make([]forecast.Result, len(rs))
	for i, r := range rs {
		out[i] = r
		if r.Metrics != nil {
			out[i].Metrics = make(map[string]float64, len(r.Metrics))
			for k, v := range r.Metrics {
				out[i].Metrics[k] = v
			}
		}
	}
	return out
}

// ResultRow is one denormalized (session, scenario, date) forecast row
type ResultRow struct {
	SessionID  string `json:"session_id"`
	ScenarioID string `json:"scenario_id"`
	forecast.Result
}

// ResultRows flattens the results in scenario order, then date order
func (s *Session) ResultRows() []ResultRow {
	var rows []ResultRow
	for _, sc := range s.Scenarios {
		for _, r := range s.Results[sc.ID] {
			rows = append(rows, ResultRow{SessionID: s.ID, ScenarioID: sc.ID, Result: r})
		}
	}
	return rows
}

// ensureResultEntries gives every scenario a (possibly empty) result list
func (s *Session) ensureResultEntries() {
	if s.Results == nil {
		s.Results = make(map[string][]forecast.Result, len(s.Scenarios))
	}
	if s.Accuracy == nil {
		s.Accuracy = make(map[string]forecast.Accuracy)
	}
	for _, sc := range s.Scenarios {
		if _, ok := s.Results[sc.ID]; !ok {
			s.Results[sc.ID] = []forecast.Result{}
		}
	}
}

// filterRows keeps rows of scenarioID (all when empty) dated inside r
func filterRows(rows []ResultRow, scenarioID string, r analytics.DateRange) []ResultRow {
	out := make([]ResultRow, 0, len(rows))
	for _, row := range rows {
		if scenarioID != "" && row.ScenarioID != scenarioID {
			continue
		}
		if r.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return out
}

// sortSessions orders newest first, ties by id
func sortSessions(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
