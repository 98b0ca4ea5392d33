package forecast

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// MovingAverage forecasts with a simple moving average rolled forward: each
// prediction is the mean of the previous window, predictions included.
type MovingAverage struct {
	baseModel

	windowSize int
	window     []float64
	stdError   float64
	path       []float64
}

// NewMovingAverage creates a new simple moving average model
func NewMovingAverage(windowSize int, cfg ModelConfig) *MovingAverage {
	return &MovingAverage{
		baseModel:  baseModel{method: MethodMovingAverage, cfg: cfg},
		windowSize: windowSize,
	}
}

// Train keeps the last window and measures one-step-ahead residuals
func (m *MovingAverage) Train(series []DataPoint) error {
	values, err := m.prepare(series, m.windowSize)
	if err != nil {
		return err
	}

	var residuals []float64
	if len(values) > m.windowSize {
		sma := movingAverages(values, m.windowSize)
		offset := len(values) - len(sma)
		for i := m.windowSize; i < len(values); i++ {
			j := i - 1 - offset
			if j < 0 || j >= len(sma) {
				continue
			}
			residuals = append(residuals, values[i]-sma[j])
		}
	}
	if len(residuals) > 1 {
		m.stdError = residualStdError(residuals, 1)
	} else {
		m.stdError = sampleStdDev(values)
	}

	m.window = append([]float64(nil), values[len(values)-m.windowSize:]...)
	m.path = nil
	m.trained = true
	return nil
}

// movingAverages returns the trailing means of every full window; element j
// covers values[j+offset-window+1 .. j+offset] with offset = len(values)-len(result).
func movingAverages(values []float64, window int) []float64 {
	if window <= 1 {
		return append([]float64(nil), values...)
	}
	sma := trend.NewSmaWithPeriod[float64](window)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
}

func (m *MovingAverage) project(k int) (float64, float64) {
	for len(m.path) < k {
		buf := append(append([]float64(nil), m.window...), m.path...)
		recent := buf[len(buf)-m.windowSize:]
		sum := 0.0
		for _, v := range recent {
			sum += v
		}
		m.path = append(m.path, sum/float64(m.windowSize))
	}
	return m.path[k-1], m.stdError * math.Sqrt(float64(k))
}

// Forecast rolls the window forward horizon periods
func (m *MovingAverage) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *MovingAverage) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}

// WeightedMovingAverage is a moving average with normalized per-position
// weights. The last weight applies to the most recent value.
type WeightedMovingAverage struct {
	baseModel

	weights  []float64
	window   []float64
	stdError float64
	path     []float64
}

// NewWeightedMovingAverage creates a new weighted moving average model
func NewWeightedMovingAverage(weights []float64, cfg ModelConfig) *WeightedMovingAverage {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / sum
	}
	return &WeightedMovingAverage{
		baseModel: baseModel{method: MethodMovingAverage, cfg: cfg},
		weights:   normalized,
	}
}

func (m *WeightedMovingAverage) weighted(recent []float64) float64 {
	v := 0.0
	for i, w := range m.weights {
		v += w * recent[i]
	}
	return v
}

// Train keeps the last window and measures one-step-ahead residuals
func (m *WeightedMovingAverage) Train(series []DataPoint) error {
	w := len(m.weights)
	values, err := m.prepare(series, w)
	if err != nil {
		return err
	}

	residuals := make([]float64, 0, len(values))
	for i := w; i < len(values); i++ {
		residuals = append(residuals, values[i]-m.weighted(values[i-w:i]))
	}
	if len(residuals) > 1 {
		m.stdError = residualStdError(residuals, 1)
	} else {
		m.stdError = sampleStdDev(values)
	}

	m.window = append([]float64(nil), values[len(values)-w:]...)
	m.path = nil
	m.trained = true
	return nil
}

func (m *WeightedMovingAverage) project(k int) (float64, float64) {
	w := len(m.weights)
	for len(m.path) < k {
		buf := append(append([]float64(nil), m.window...), m.path...)
		m.path = append(m.path, m.weighted(buf[len(buf)-w:]))
	}
	return m.path[k-1], m.stdError * math.Sqrt(float64(k))
}

// Forecast rolls the weighted window forward horizon periods
func (m *WeightedMovingAverage) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *WeightedMovingAverage) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}
