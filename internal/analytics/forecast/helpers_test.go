package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
)

// Common test data and helpers for all forecast tests

var testBaseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() ModelConfig {
	return DefaultModelConfig()
}

// generateLinearData creates monthly test data with linear pattern: y = slope * x + intercept
func generateLinearData(n int, slope, intercept float64) []DataPoint {
	data := make([]DataPoint, n)
	for i := 0; i < n; i++ {
		data[i] = DataPoint{
			Time:  analytics.Monthly.Step(testBaseTime, i),
			Value: slope*float64(i) + intercept,
		}
	}
	return data
}

// generateSeasonalTestData creates monthly test data with a trend and a seasonal pattern
func generateSeasonalTestData(n int, period int) []DataPoint {
	data := make([]DataPoint, n)
	for i := 0; i < n; i++ {
		trend := float64(i) * 0.5
		seasonal := 10 * math.Sin(2*math.Pi*float64(i%period)/float64(period))
		data[i] = DataPoint{
			Time:  analytics.Monthly.Step(testBaseTime, i),
			Value: 50 + trend + seasonal,
		}
	}
	return data
}

func dataFromValues(values ...float64) []DataPoint {
	data := make([]DataPoint, len(values))
	for i, v := range values {
		data[i] = DataPoint{Time: analytics.Monthly.Step(testBaseTime, i), Value: v}
	}
	return data
}

// assertForecastShape checks the invariants every model's output must hold.
func assertForecastShape(t *testing.T, results []Result, horizon int, lastTrained time.Time, method Method) {
	t.Helper()

	if len(results) != horizon {
		t.Fatalf("Expected %d predictions, got %d", horizon, len(results))
	}
	prevDate := lastTrained
	prevConfidence := 2.0
	prevWidth := -1.0
	for i, r := range results {
		if !r.Date.After(prevDate) {
			t.Errorf("prediction %d: date %v not after %v", i, r.Date, prevDate)
		}
		if r.LowerBound > r.PredictedValue || r.PredictedValue > r.UpperBound {
			t.Errorf("prediction %d: bounds violated: %v <= %v <= %v", i, r.LowerBound, r.PredictedValue, r.UpperBound)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("prediction %d: confidence %v out of range", i, r.Confidence)
		}
		if r.Confidence >= prevConfidence {
			t.Errorf("prediction %d: confidence %v did not decrease from %v", i, r.Confidence, prevConfidence)
		}
		width := r.UpperBound - r.LowerBound
		if width < prevWidth-1e-9 {
			t.Errorf("prediction %d: interval narrowed from %v to %v", i, prevWidth, width)
		}
		if r.Method != method {
			t.Errorf("prediction %d: method %q, want %q", i, r.Method, method)
		}
		prevDate = r.Date
		prevConfidence = r.Confidence
		prevWidth = width
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
