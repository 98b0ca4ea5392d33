package forecast

import (
	"fmt"
	"math"
)

// SeasonalDecomposition forecasts with classical decomposition: a centered
// moving-average trend, per-phase seasonal indices, and a least squares line
// through the deseasonalized series for extrapolation.
type SeasonalDecomposition struct {
	baseModel

	period         int
	multiplicative bool

	seasonal  []float64 // one index per phase, phase = index mod period
	slope     float64
	intercept float64
	stdError  float64
}

// NewSeasonalDecomposition creates a new seasonal decomposition model
func NewSeasonalDecomposition(period int, multiplicative bool, cfg ModelConfig) *SeasonalDecomposition {
	return &SeasonalDecomposition{
		baseModel:      baseModel{method: MethodSeasonalDecomposition, cfg: cfg},
		period:         period,
		multiplicative: multiplicative,
	}
}

// SeasonalIndices returns a copy of the fitted per-phase indices.
func (m *SeasonalDecomposition) SeasonalIndices() []float64 {
	return append([]float64(nil), m.seasonal...)
}

// Train decomposes the series; needs at least two full seasons
func (m *SeasonalDecomposition) Train(series []DataPoint) error {
	values, err := m.prepare(series, 2*m.period)
	if err != nil {
		return err
	}
	n := len(values)

	// Step 1: extract trend with an odd centered window
	window := m.period
	if window%2 == 0 {
		window++
	}
	trendLine := centeredMovingAverage(values, window)

	// Step 2: detrend
	detrended := make([]float64, n)
	for i, v := range values {
		if m.multiplicative {
			if trendLine[i] != 0 {
				detrended[i] = v / trendLine[i]
			} else {
				detrended[i] = 1
			}
		} else {
			detrended[i] = v - trendLine[i]
		}
	}

	// Step 3: average each phase and normalize
	m.seasonal = m.seasonalPattern(detrended)

	// Step 4: fit a line through the deseasonalized series
	deseasonalized := make([]float64, n)
	for i, v := range values {
		deseasonalized[i] = m.removeSeason(v, i)
	}
	m.slope, m.intercept, err = leastSquares(deseasonalized)
	if err != nil {
		return &ModelTrainingError{Method: m.method, Err: err}
	}

	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - m.fitted(i)
	}
	m.stdError = residualStdError(residuals, 2)
	m.trained = true
	return nil
}

func (m *SeasonalDecomposition) seasonalPattern(detrended []float64) []float64 {
	sums := make([]float64, m.period)
	counts := make([]int, m.period)
	for i, v := range detrended {
		sums[i%m.period] += v
		counts[i%m.period]++
	}
	pattern := make([]float64, m.period)
	mean := 0.0
	for p := range pattern {
		if counts[p] > 0 {
			pattern[p] = sums[p] / float64(counts[p])
		}
		mean += pattern[p]
	}
	mean /= float64(m.period)

	for p := range pattern {
		if m.multiplicative {
			if mean != 0 {
				pattern[p] /= mean
			} else {
				pattern[p] = 1
			}
		} else {
			pattern[p] -= mean
		}
	}
	return pattern
}

func (m *SeasonalDecomposition) removeSeason(v float64, i int) float64 {
	s := m.seasonal[i%m.period]
	if m.multiplicative {
		if s == 0 {
			return v
		}
		return v / s
	}
	return v - s
}

func (m *SeasonalDecomposition) fitted(i int) float64 {
	t := m.intercept + m.slope*float64(i)
	s := m.seasonal[i%m.period]
	if m.multiplicative {
		return t * s
	}
	return t + s
}

func (m *SeasonalDecomposition) project(k int) (float64, float64) {
	return m.fitted(m.n + k - 1), m.stdError * math.Sqrt(float64(k))
}

// Forecast recombines the extrapolated trend with the seasonal indices
func (m *SeasonalDecomposition) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *SeasonalDecomposition) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}

// centeredMovingAverage averages a symmetric window around each index,
// shrinking the window at the series edges.
func centeredMovingAverage(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := window / 2
	for i := 0; i < n; i++ {
		start := i - half
		end := i + half + 1
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		sum := 0.0
		for j := start; j < end; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

// leastSquares fits y = intercept + slope*i over the index.
func leastSquares(values []float64) (slope, intercept float64, err error) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, 0, fmt.Errorf("cannot calculate regression: all x values are the same")
	}
	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, nil
}
