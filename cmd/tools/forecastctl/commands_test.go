package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarios_Methods(t *testing.T) {
	scenarios, err := loadScenarios("", []string{"linear_regression", " moving_average"}, 4)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "linear_regression", scenarios[0].ID)
	assert.Equal(t, "linear regression", scenarios[0].Name)
	assert.Equal(t, forecast.MethodMovingAverage, scenarios[1].Method)
	assert.Equal(t, 4, scenarios[1].ForecastHorizon)

	_, err = loadScenarios("", []string{"arima"}, 4)
	assert.ErrorIs(t, err, forecast.ErrUnknownMethod)

	_, err = loadScenarios("", nil, 4)
	assert.Error(t, err)
}

func TestLoadScenarios_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "fast", "name": "fast smoothing", "method": "exponential_smoothing", "forecast_horizon": 3, "parameters": {"alpha": 0.8}}
	]`), 0o644))

	scenarios, err := loadScenarios(path, []string{"linear_regression"}, 6)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, forecast.ExponentialSmoothingParams{Alpha: 0.8}, scenarios[0].Parameters)
	assert.Equal(t, "linear_regression", scenarios[1].ID)

	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644))
	_, err = loadScenarios(path, nil, 6)
	assert.Error(t, err)
}

func TestPrintSession_MarksFailedScenarios(t *testing.T) {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := &session.Session{
		ID:          "s1",
		Name:        "outlook",
		DataSource:  "revenue",
		Periodicity: analytics.Monthly,
		DateRange:   analytics.NewDateRange(day.AddDate(-1, 0, 0), day.AddDate(0, 0, -1)),
		Scenarios: []session.Scenario{
			{ID: "lr", Method: forecast.MethodLinearRegression, ForecastHorizon: 1},
			{ID: "sd", Method: forecast.MethodSeasonalDecomposition, ForecastHorizon: 1},
		},
		Results: map[string][]forecast.Result{
			"lr": {{Date: day, PredictedValue: 1600, LowerBound: 1500, UpperBound: 1700, Confidence: 0.95, Method: forecast.MethodLinearRegression}},
			"sd": {},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printSession(&buf, sess))

	out := buf.String()
	assert.Contains(t, out, "2025-01-01")
	assert.Contains(t, out, "1600.00")
	assert.Regexp(t, `sd\s+seasonal_decomposition\s+-\s+failed`, out)
}

func TestPrintAccuracy_UndefinedMAPE(t *testing.T) {
	summary := &services.AccuracySummary{
		SessionID: "s1",
		Scenarios: []services.ScenarioAccuracy{
			{ScenarioID: "lr", Method: forecast.MethodLinearRegression, Forecasted: true,
				Accuracy: &forecast.Accuracy{R2: 0.9, MAPE: 4.5, TestSize: 2, MAPETerms: 2}},
			{ScenarioID: "ma", Method: forecast.MethodMovingAverage, Forecasted: true,
				Accuracy: &forecast.Accuracy{R2: 0.4, TestSize: 2}},
		},
		Scored: 2,
	}

	var buf bytes.Buffer
	require.NoError(t, printAccuracy(&buf, summary))
	assert.Regexp(t, `lr\s+linear_regression\s+0\.9000\s+4\.50%`, buf.String())
	assert.Regexp(t, `ma\s+moving_average\s+0\.4000\s+n/a`, buf.String())
}
