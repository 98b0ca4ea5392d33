package forecast

import (
	"errors"
	"testing"
	"time"
)

func TestLinearRegression_BasicForecast(t *testing.T) {
	data := generateLinearData(50, 2.0, 5.0) // y = 2x + 5

	model := NewLinearRegression(testConfig())
	if err := model.Train(data); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	if !approxEqual(model.Slope(), 2, 1e-9) || !approxEqual(model.Intercept(), 5, 1e-9) {
		t.Errorf("Expected slope=2 intercept=5, got slope=%v intercept=%v", model.Slope(), model.Intercept())
	}

	results, err := model.Forecast(5)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	assertForecastShape(t, results, 5, data[len(data)-1].Time, MethodLinearRegression)

	for i, r := range results {
		want := 2*float64(50+i) + 5
		if !approxEqual(r.PredictedValue, want, 1e-6) {
			t.Errorf("prediction %d: got %v, want %v", i, r.PredictedValue, want)
		}
	}
}

func TestLinearRegression_MonthlyRevenueEndToEnd(t *testing.T) {
	// 12 monthly points from 1000 rising by 50
	data := generateLinearData(12, 50, 1000)

	model := NewLinearRegression(testConfig())
	if err := model.Train(data); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	results, err := model.Forecast(3)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	want := []float64{1600, 1650, 1700}
	wantDates := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, r := range results {
		if !approxEqual(r.PredictedValue, want[i], 1e-6) {
			t.Errorf("prediction %d: got %v, want %v", i, r.PredictedValue, want[i])
		}
		if !r.Date.Equal(wantDates[i]) {
			t.Errorf("prediction %d: date %v, want %v", i, r.Date, wantDates[i])
		}
	}
}

func TestLinearRegression_AccuracyOnHeldOutTail(t *testing.T) {
	data := generateLinearData(12, 50, 1000)
	train, test := data[:10], data[10:]

	model := NewLinearRegression(testConfig())
	if err := model.Train(train); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	acc, err := model.CalculateAccuracy(test)
	if err != nil {
		t.Fatalf("CalculateAccuracy failed: %v", err)
	}
	if !approxEqual(acc.R2, 1, 1e-9) {
		t.Errorf("Expected R2 ≈ 1, got %v", acc.R2)
	}
	if acc.RMSE > 1e-6 || acc.MAPE > 1e-6 {
		t.Errorf("Expected near-zero error, got RMSE=%v MAPE=%v", acc.RMSE, acc.MAPE)
	}
	if acc.TestSize != 2 || acc.MAPETerms != 2 {
		t.Errorf("Expected test size 2 with 2 MAPE terms, got %d/%d", acc.TestSize, acc.MAPETerms)
	}
}

func TestLinearRegression_ForecastIsRepeatable(t *testing.T) {
	model := NewLinearRegression(testConfig())
	if err := model.Train(generateLinearData(10, 3, 1)); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	first, _ := model.Forecast(4)
	if _, err := model.CalculateAccuracy(generateLinearData(2, 3, 31)); err != nil {
		t.Fatalf("CalculateAccuracy failed: %v", err)
	}
	second, _ := model.Forecast(4)
	for i := range first {
		if first[i].PredictedValue != second[i].PredictedValue {
			t.Errorf("prediction %d changed between calls", i)
		}
	}
}

func TestLinearRegression_InsufficientData(t *testing.T) {
	model := NewLinearRegression(testConfig())
	err := model.Train(generateLinearData(1, 1.0, 0.0))

	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("Expected InsufficientDataError, got %v", err)
	}
	if ide.Need != 2 || ide.Have != 1 {
		t.Errorf("Unexpected error detail: %+v", ide)
	}
}

func TestLinearRegression_NoisyBoundsWiden(t *testing.T) {
	data := dataFromValues(10, 12, 11, 14, 13, 16, 15, 18)
	model := NewLinearRegression(testConfig())
	if err := model.Train(data); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	results, err := model.Forecast(4)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	first := results[0].UpperBound - results[0].LowerBound
	last := results[3].UpperBound - results[3].LowerBound
	if first <= 0 || last <= first {
		t.Errorf("Expected widening positive intervals, got %v then %v", first, last)
	}
}

func TestLinearRegression_Method(t *testing.T) {
	if m := NewLinearRegression(testConfig()).Method(); m != MethodLinearRegression {
		t.Errorf("Expected method %q, got %q", MethodLinearRegression, m)
	}
}

func BenchmarkLinearRegression(b *testing.B) {
	data := generateLinearData(1000, 1.5, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model := NewLinearRegression(testConfig())
		_ = model.Train(data)
		_, _ = model.Forecast(24)
	}
}

func TestLinearRegression_MAPEUndefinedOnZeroActuals(t *testing.T) {
	data := generateLinearData(5, -10, 40)
	train, test := data[:4], data[4:]

	model := NewLinearRegression(testConfig())
	if err := model.Train(train); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	acc, err := model.CalculateAccuracy(test)
	if err != nil {
		t.Fatalf("CalculateAccuracy failed: %v", err)
	}
	if acc.HasMAPE() || acc.MAPETerms != 0 {
		t.Errorf("Expected undefined MAPE for a zero actual, got terms=%d", acc.MAPETerms)
	}
	if acc.TestSize != 1 {
		t.Errorf("Expected test size 1, got %d", acc.TestSize)
	}
}
