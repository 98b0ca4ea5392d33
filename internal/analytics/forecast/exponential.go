package forecast

import (
	"math"
)

// ExponentialSmoothing implements simple exponential smoothing. The forecast
// is flat at the final smoothed level.
type ExponentialSmoothing struct {
	baseModel

	alpha    float64
	level    float64
	stdError float64
}

// NewExponentialSmoothing creates a new simple exponential smoothing model
func NewExponentialSmoothing(alpha float64, cfg ModelConfig) *ExponentialSmoothing {
	return &ExponentialSmoothing{
		baseModel: baseModel{method: MethodExponentialSmoothing, cfg: cfg},
		alpha:     alpha,
	}
}

// Level returns the final smoothed level.
func (m *ExponentialSmoothing) Level() float64 { return m.level }

// Train smooths the series; level_t = alpha*v_t + (1-alpha)*level_{t-1}
func (m *ExponentialSmoothing) Train(series []DataPoint) error {
	values, err := m.prepare(series, 2)
	if err != nil {
		return err
	}

	level := values[0]
	residuals := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		// one-step-ahead forecast is the previous level
		residuals = append(residuals, values[i]-level)
		level = m.alpha*values[i] + (1-m.alpha)*level
	}

	m.level = level
	m.stdError = residualStdError(residuals, 0)
	m.trained = true
	return nil
}

func (m *ExponentialSmoothing) project(k int) (float64, float64) {
	// Increase uncertainty for further predictions
	return m.level, m.stdError * math.Sqrt(float64(k))
}

// Forecast returns horizon periods at the final level
func (m *ExponentialSmoothing) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *ExponentialSmoothing) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}

// DoubleExponentialSmoothing implements Holt's linear trend method: a
// smoothed level plus a smoothed trend, forecast as level + k*trend. It has
// no seasonal component.
type DoubleExponentialSmoothing struct {
	baseModel

	alpha    float64
	beta     float64
	level    float64
	trend    float64
	stdError float64
}

// NewDoubleExponentialSmoothing creates a Holt model reporting holt_winters
func NewDoubleExponentialSmoothing(alpha, beta float64, cfg ModelConfig) *DoubleExponentialSmoothing {
	return &DoubleExponentialSmoothing{
		baseModel: baseModel{method: MethodHoltWinters, cfg: cfg},
		alpha:     alpha,
		beta:      beta,
	}
}

// Trend returns the final smoothed trend.
func (m *DoubleExponentialSmoothing) Trend() float64 { return m.trend }

// Train fits level and trend; needs at least two points
func (m *DoubleExponentialSmoothing) Train(series []DataPoint) error {
	values, err := m.prepare(series, 2)
	if err != nil {
		return err
	}

	level := values[0]
	trend := values[1] - values[0]
	residuals := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		residuals = append(residuals, values[i]-(level+trend))

		prevLevel := level
		level = m.alpha*values[i] + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prevLevel) + (1-m.beta)*trend
	}

	m.level = level
	m.trend = trend
	m.stdError = residualStdError(residuals, 0)
	m.trained = true
	return nil
}

func (m *DoubleExponentialSmoothing) project(k int) (float64, float64) {
	return m.level + float64(k)*m.trend, m.stdError * math.Sqrt(float64(k))
}

// Forecast extrapolates the trend horizon periods
func (m *DoubleExponentialSmoothing) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *DoubleExponentialSmoothing) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}
