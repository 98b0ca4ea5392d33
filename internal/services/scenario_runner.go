package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/metrics"
	"github.com/soltixdb/ledgercast/internal/session"
	"golang.org/x/sync/errgroup"
)

// RunResult holds the outcome of evaluating a list of scenarios
type RunResult struct {
	// Results has one entry per scenario; failed scenarios map to an empty list
	Results map[string][]forecast.Result
	// Accuracy has entries only for scenarios scored against a non-empty test split
	Accuracy map[string]forecast.Accuracy
	// Failed lists the ids of scenarios that produced no forecast, in scenario order
	Failed []string
}

// ScenarioRunner trains, forecasts and scores scenarios against one historical series
type ScenarioRunner struct {
	cfg      config.ForecastConfig
	logger   *logging.Logger
	metrics  *metrics.Metrics
	newModel func(forecast.Method, forecast.Parameters, forecast.ModelConfig) (forecast.Model, error)
}

// NewScenarioRunner creates a runner. A nil metrics disables instrumentation.
func NewScenarioRunner(cfg config.ForecastConfig, logger *logging.Logger, m *metrics.Metrics) *ScenarioRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &ScenarioRunner{
		cfg:      cfg,
		logger:   logger.Component("scenario_runner"),
		metrics:  m,
		newModel: forecast.NewModel,
	}
}

// Split divides the series by index into a training head of round(ratio*n)
// points and a test tail holding the rest
func (r *ScenarioRunner) Split(historical []analytics.TimeSeriesPoint) (train, test []analytics.TimeSeriesPoint) {
	n := len(historical)
	size := int(math.Round(r.cfg.TrainRatio * float64(n)))
	if size < 1 {
		size = 1
	}
	if size > n {
		size = n
	}
	return historical[:size], historical[size:]
}

type scenarioOutcome struct {
	results  []forecast.Result
	accuracy *forecast.Accuracy
	err      error
}

// Run evaluates every scenario. A scenario that fails anywhere between model
// construction and forecasting yields an empty result list and no accuracy;
// the other scenarios are unaffected. Scenarios not yet started when ctx is
// done are skipped and Run returns ctx.Err().
func (r *ScenarioRunner) Run(ctx context.Context, historical []analytics.TimeSeriesPoint, scenarios []session.Scenario) (*RunResult, error) {
	if len(historical) < r.cfg.MinHistory {
		return nil, &InsufficientHistoryError{Have: len(historical), Need: r.cfg.MinHistory}
	}

	train, test := r.Split(historical)
	outcomes := make([]scenarioOutcome, len(scenarios))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxConcurrency)

	for i, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.runScenario(sc, train, test, historical)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &RunResult{
		Results:  make(map[string][]forecast.Result, len(scenarios)),
		Accuracy: make(map[string]forecast.Accuracy, len(scenarios)),
	}
	for i, sc := range scenarios {
		out := outcomes[i]
		if out.err != nil {
			res.Results[sc.ID] = []forecast.Result{}
			res.Failed = append(res.Failed, sc.ID)
			continue
		}
		res.Results[sc.ID] = out.results
		if out.accuracy != nil {
			res.Accuracy[sc.ID] = *out.accuracy
		}
	}

	r.logger.Debug("Scenarios evaluated",
		"scenarios", len(scenarios),
		"failed", len(res.Failed),
		"train_size", len(train),
		"test_size", len(test))

	return res, nil
}

func (r *ScenarioRunner) modelConfig(sc session.Scenario) forecast.ModelConfig {
	cfg := forecast.DefaultModelConfig()
	if sc.Periodicity != "" {
		cfg.Periodicity = sc.Periodicity
	}
	cfg.Confidence = r.cfg.Confidence
	cfg.ConfidenceDecay = r.cfg.ConfidenceDecay
	return cfg
}

func (r *ScenarioRunner) trainModel(sc session.Scenario, series []analytics.TimeSeriesPoint) (forecast.Model, error) {
	params, err := sc.Params()
	if err != nil {
		return nil, err
	}
	model, err := r.newModel(sc.Method, params, r.modelConfig(sc))
	if err != nil {
		return nil, err
	}
	if err := model.Train(series); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *ScenarioRunner) runScenario(sc session.Scenario, train, test, full []analytics.TimeSeriesPoint) (out scenarioOutcome) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			out = scenarioOutcome{err: fmt.Errorf("scenario panicked: %v", rec)}
		}
		r.metrics.ObserveScenario(string(sc.Method), out.err == nil, time.Since(start))
		if out.err != nil {
			r.logger.Warn("Scenario failed",
				"scenario_id", sc.ID,
				"scenario", sc.Name,
				"method", string(sc.Method),
				"error", out.err)
		}
	}()

	model, err := r.trainModel(sc, train)
	if err != nil {
		return scenarioOutcome{err: err}
	}

	if len(test) > 0 {
		acc, err := model.CalculateAccuracy(test)
		if err != nil {
			return scenarioOutcome{err: err}
		}
		out.accuracy = &acc
	}

	if r.cfg.RefitOnFullHistory && len(test) > 0 {
		if model, err = r.trainModel(sc, full); err != nil {
			return scenarioOutcome{err: err}
		}
	}

	results, err := model.Forecast(sc.ForecastHorizon)
	if err != nil {
		return scenarioOutcome{err: err}
	}
	out.results = results
	return out
}
