package forecast

import (
	"fmt"
	"math"
)

// LinearRegression fits ordinary least squares on the period index
type LinearRegression struct {
	baseModel

	slope     float64
	intercept float64
	sumX      float64
	sumX2     float64
	stdError  float64
}

// NewLinearRegression creates a new linear regression model
func NewLinearRegression(cfg ModelConfig) *LinearRegression {
	return &LinearRegression{baseModel: baseModel{method: MethodLinearRegression, cfg: cfg}}
}

// Slope returns the fitted change per period.
func (m *LinearRegression) Slope() float64 { return m.slope }

// Intercept returns the fitted value at index 0.
func (m *LinearRegression) Intercept() float64 { return m.intercept }

// Train fits slope and intercept; needs at least two points
func (m *LinearRegression) Train(series []DataPoint) error {
	values, err := m.prepare(series, 2)
	if err != nil {
		return err
	}

	n := float64(len(values))

	// Calculate sums for linear regression
	sumX := 0.0
	sumY := 0.0
	sumXY := 0.0
	sumX2 := 0.0

	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return &ModelTrainingError{Method: m.method, Err: fmt.Errorf("cannot calculate regression: all x values are the same")}
	}

	m.slope = (n*sumXY - sumX*sumY) / denominator
	m.intercept = (sumY - m.slope*sumX) / n
	m.sumX = sumX
	m.sumX2 = sumX2

	residuals := make([]float64, len(values))
	for i, v := range values {
		residuals[i] = v - (m.intercept + m.slope*float64(i))
	}
	m.stdError = residualStdError(residuals, 2)
	m.trained = true
	return nil
}

func (m *LinearRegression) project(k int) (float64, float64) {
	n := float64(m.n)
	x := float64(m.n + k - 1)
	value := m.intercept + m.slope*x

	// Standard error increases for extrapolation
	meanX := m.sumX / n
	xDiff := x - meanX
	spread := m.sumX2 - m.sumX*m.sumX/n
	predStdError := m.stdError * math.Sqrt(1+1/n+xDiff*xDiff/spread)
	return value, predStdError
}

// Forecast projects the fitted line horizon periods forward
func (m *LinearRegression) Forecast(horizon int) ([]Result, error) {
	return m.forecastWith(m, horizon)
}

// CalculateAccuracy scores the model against test
func (m *LinearRegression) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.accuracyWith(m, test)
}
