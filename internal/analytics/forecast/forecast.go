// Package forecast implements the statistical models used to project an
// aggregated series forward and to score them against held-out history.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
)

// DataPoint is an alias to the shared analytics.TimeSeriesPoint type.
type DataPoint = analytics.TimeSeriesPoint

// Method identifies a forecasting method a scenario can request.
type Method string

const (
	MethodLinearRegression      Method = "linear_regression"
	MethodMovingAverage         Method = "moving_average"
	MethodExponentialSmoothing  Method = "exponential_smoothing"
	MethodSeasonalDecomposition Method = "seasonal_decomposition"
	// MethodHoltWinters is served by non-seasonal double exponential smoothing.
	MethodHoltWinters Method = "holt_winters"
	// MethodEnsemble currently delegates to linear regression.
	MethodEnsemble Method = "ensemble"
)

// Methods lists every supported method.
var Methods = []Method{
	MethodLinearRegression,
	MethodMovingAverage,
	MethodExponentialSmoothing,
	MethodSeasonalDecomposition,
	MethodHoltWinters,
	MethodEnsemble,
}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

func (m Method) String() string { return string(m) }

// Result is one forecast period.
type Result struct {
	Date           time.Time          `json:"date"`
	PredictedValue float64            `json:"predicted_value"`
	LowerBound     float64            `json:"lower_bound"`
	UpperBound     float64            `json:"upper_bound"`
	Confidence     float64            `json:"confidence"`
	Method         Method             `json:"method"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}

// Accuracy scores a trained model against a held-out tail. MAPETerms counts
// the test points with a non-zero actual; MAPE is undefined when it is 0.
type Accuracy struct {
	R2        float64 `json:"r2"`
	MAPE      float64 `json:"mape"`
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	TestSize  int     `json:"test_size"`
	MAPETerms int     `json:"mape_terms"`
}

// HasMAPE reports whether MAPE was computed from at least one test point.
func (a Accuracy) HasMAPE() bool {
	return a.MAPETerms > 0
}

// ModelConfig holds settings shared by every model.
type ModelConfig struct {
	Periodicity     analytics.Periodicity // Spacing between forecast dates
	Confidence      float64               // Confidence level for prediction intervals (0-1)
	ConfidenceDecay float64               // Fractional confidence loss per additional period
}

// DefaultModelConfig returns default model configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Periodicity:     analytics.Monthly,
		Confidence:      0.95,
		ConfidenceDecay: 0.05,
	}
}

// Validate checks the config values.
func (c ModelConfig) Validate() error {
	if !c.Periodicity.Valid() {
		return fmt.Errorf("%w: periodicity %q", ErrInvalidParameters, c.Periodicity)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in (0, 1], got %v", ErrInvalidParameters, c.Confidence)
	}
	if c.ConfidenceDecay <= 0 || c.ConfidenceDecay >= 1 {
		return fmt.Errorf("%w: confidence decay must be in (0, 1), got %v", ErrInvalidParameters, c.ConfidenceDecay)
	}
	return nil
}

// Model is a trainable forecasting model. A model is owned by one scenario
// run and is not safe for concurrent use.
type Model interface {
	// Method returns the method this model reports in its results
	Method() Method
	// Train fits the model to an ascending series
	Train(series []DataPoint) error
	// Forecast projects horizon periods past the last trained date
	Forecast(horizon int) ([]Result, error)
	// CalculateAccuracy runs the model over len(test) periods and scores it
	CalculateAccuracy(test []DataPoint) (Accuracy, error)
}

// projector is the per-model part of forecasting: the point estimate and
// its standard error k periods past the end of training (k starts at 1).
type projector interface {
	project(k int) (value, stdError float64)
}

// baseModel carries training state and result shaping shared by all models.
type baseModel struct {
	method   Method
	cfg      ModelConfig
	lastDate time.Time
	n        int
	trained  bool
}

// prepare validates a training series and records its shape.
func (b *baseModel) prepare(series []DataPoint, minPoints int) ([]float64, error) {
	if len(series) < minPoints {
		return nil, &InsufficientDataError{Method: b.method, Need: minPoints, Have: len(series)}
	}
	values := make([]float64, len(series))
	for i, p := range series {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, &ModelTrainingError{Method: b.method, Err: fmt.Errorf("non-finite value at index %d", i)}
		}
		if i > 0 && !p.Time.After(series[i-1].Time) {
			return nil, &ModelTrainingError{Method: b.method, Err: fmt.Errorf("dates not strictly increasing at index %d", i)}
		}
		values[i] = p.Value
	}
	b.n = len(series)
	b.lastDate = series[len(series)-1].Time
	b.trained = false
	return values, nil
}

func (b *baseModel) Method() Method { return b.method }

// forecastWith builds horizon results from a projector.
func (b *baseModel) forecastWith(p projector, horizon int) ([]Result, error) {
	if !b.trained {
		return nil, &ModelForecastError{Method: b.method, Err: ErrNotTrained}
	}
	if horizon <= 0 {
		return nil, &ModelForecastError{Method: b.method, Err: fmt.Errorf("horizon must be positive, got %d", horizon)}
	}

	results := make([]Result, horizon)
	for k := 1; k <= horizon; k++ {
		value, stdError := p.project(k)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &ModelForecastError{Method: b.method, Err: fmt.Errorf("non-finite prediction at step %d", k)}
		}
		if math.IsNaN(stdError) || math.IsInf(stdError, 0) || stdError < 0 {
			stdError = 0
		}
		lower, upper := calculatePredictionInterval(value, stdError, b.cfg.Confidence)
		results[k-1] = Result{
			Date:           b.cfg.Periodicity.Step(b.lastDate, k),
			PredictedValue: value,
			LowerBound:     lower,
			UpperBound:     upper,
			Confidence:     stepConfidence(b.cfg.Confidence, b.cfg.ConfidenceDecay, k),
			Method:         b.method,
			Metrics:        map[string]float64{"std_error": stdError, "step": float64(k)},
		}
	}
	return results, nil
}

// accuracyWith forecasts len(test) periods and scores them positionally.
func (b *baseModel) accuracyWith(m Model, test []DataPoint) (Accuracy, error) {
	if len(test) == 0 {
		return Accuracy{}, fmt.Errorf("%w: empty test series", ErrInvalidParameters)
	}
	predictions, err := m.Forecast(len(test))
	if err != nil {
		return Accuracy{}, err
	}
	actual := make([]float64, len(test))
	predicted := make([]float64, len(test))
	for i := range test {
		actual[i] = test[i].Value
		predicted[i] = predictions[i].PredictedValue
	}
	return Accuracy{
		R2:        CalculateR2(actual, predicted),
		MAPE:      CalculateMAPE(actual, predicted),
		RMSE:      CalculateRMSE(actual, predicted),
		MAE:       CalculateMAE(actual, predicted),
		TestSize:  len(test),
		MAPETerms: mapeTerms(actual),
	}, nil
}

// stepConfidence decays the base confidence geometrically with distance.
func stepConfidence(base, decay float64, k int) float64 {
	c := base * math.Pow(1-decay, float64(k-1))
	return math.Max(0, math.Min(1, c))
}

// CalculateR2 calculates the coefficient of determination. A constant actual
// series scores 1 when matched exactly and 0 otherwise.
func CalculateR2(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0
	}
	mean := 0.0
	for _, a := range actual {
		mean += a
	}
	mean /= float64(len(actual))

	ssRes, ssTot := 0.0, 0.0
	for i := range actual {
		r := actual[i] - predicted[i]
		ssRes += r * r
		d := actual[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// CalculateMAPE calculates Mean Absolute Percentage Error, skipping zero
// actuals. It returns 0 when every actual is zero; see Accuracy.HasMAPE.
func CalculateMAPE(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0
	}

	sum := 0.0
	count := 0
	for i := range actual {
		if actual[i] != 0 {
			sum += math.Abs((actual[i] - predicted[i]) / actual[i])
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return (sum / float64(count)) * 100
}

func mapeTerms(actual []float64) int {
	n := 0
	for _, a := range actual {
		if a != 0 {
			n++
		}
	}
	return n
}

// CalculateMAE calculates Mean Absolute Error
func CalculateMAE(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0
	}

	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// CalculateRMSE calculates Root Mean Squared Error
func CalculateRMSE(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0
	}

	sum := 0.0
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// residualStdError returns sqrt(SSE/dof) over the residuals, or 0 when dof < 1.
func residualStdError(residuals []float64, params int) float64 {
	dof := len(residuals) - params
	if dof < 1 {
		return 0
	}
	sse := 0.0
	for _, r := range residuals {
		sse += r * r
	}
	return math.Sqrt(sse / float64(dof))
}

// calculatePredictionInterval calculates prediction interval bounds
func calculatePredictionInterval(value, stdError, confidence float64) (lower, upper float64) {
	// Z-score for confidence level (approximate)
	var z float64
	switch {
	case confidence >= 0.99:
		z = 2.576
	case confidence >= 0.95:
		z = 1.96
	case confidence >= 0.90:
		z = 1.645
	case confidence >= 0.80:
		z = 1.282
	default:
		z = 1.0
	}

	margin := z * stdError
	return value - margin, value + margin
}

// sampleStdDev returns the n-1 standard deviation of values.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
